package revocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/logging"
)

func newRedisRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRegistry(rdb, "test:revoked", logging.Discard()), mr
}

// registries runs fn once per backend.
func registries(t *testing.T, fn func(t *testing.T, r Registry)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRegistry()) })
	t.Run("redis", func(t *testing.T) {
		r, _ := newRedisRegistry(t)
		fn(t, r)
	})
}

func TestRevokeAndRelease(t *testing.T) {
	registries(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)

		require.NoError(t, r.Revoke(ctx, "tok123", 7, exp))
		assert.True(t, r.IsRevoked(ctx, "tok123"))
		assert.False(t, r.IsRevoked(ctx, "other"))
		assert.False(t, r.IsRevoked(ctx, ""))

		n, err := r.Release(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.False(t, r.IsRevoked(ctx, "tok123"))
	})
}

func TestReleaseRemovesEveryTokenOfUser(t *testing.T) {
	registries(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)
		require.NoError(t, r.Revoke(ctx, "first", 7, exp))
		require.NoError(t, r.Revoke(ctx, "second", 7, exp))
		require.NoError(t, r.Revoke(ctx, "someone-else", 8, exp))

		n, err := r.Release(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.False(t, r.IsRevoked(ctx, "first"))
		assert.False(t, r.IsRevoked(ctx, "second"))
		assert.True(t, r.IsRevoked(ctx, "someone-else"))
	})
}

func TestReleaseWithoutEntriesIsNotAnError(t *testing.T) {
	registries(t, func(t *testing.T, r Registry) {
		n, err := r.Release(context.Background(), 99)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestMemoryExpiredEntriesReadAsNotRevoked(t *testing.T) {
	m := NewMemoryRegistry()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, m.Revoke(ctx, "old", 1, now.Add(-time.Second)))
	require.NoError(t, m.Revoke(ctx, "live", 1, now.Add(time.Hour)))
	require.NoError(t, m.Revoke(ctx, "later", 2, now.Add(time.Minute)))

	assert.False(t, m.IsRevoked(ctx, "old"))
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, 1, m.Purge(ctx, now.Add(2*time.Minute)))
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.IsRevoked(ctx, "live"))
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemoryRegistry()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok := "tok-" + string(rune('a'+id))
				_ = m.Revoke(ctx, tok, id, exp)
				_ = m.IsRevoked(ctx, tok)
				_, _ = m.Release(ctx, id)
			}
		}(uint64(i))
	}
	wg.Wait()
	assert.Zero(t, m.Len())
}

func TestRedisEntriesExpireWithToken(t *testing.T) {
	r, mr := newRedisRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "tok", 3, time.Now().Add(time.Minute)))
	assert.True(t, r.IsRevoked(ctx, "tok"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, r.IsRevoked(ctx, "tok"))

	n, err := r.Release(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisSkipsAlreadyExpiredTokens(t *testing.T) {
	r, mr := newRedisRegistry(t)
	require.NoError(t, r.Revoke(context.Background(), "tok", 3, time.Now().Add(-time.Minute)))
	assert.Empty(t, mr.Keys())
}

func TestRedisFailsOpenWhenUnavailable(t *testing.T) {
	r, mr := newRedisRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Revoke(ctx, "tok", 3, time.Now().Add(time.Minute)))
	mr.Close()
	assert.False(t, r.IsRevoked(ctx, "tok"))
}
