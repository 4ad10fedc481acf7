package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/revocation"
)

type fakeDomain struct {
	mu      sync.Mutex
	sources []string
	reevals int
}

func (f *fakeDomain) RevokeExpiredBans(_ context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	return 0, nil
}

func (f *fakeDomain) ArchiveOldTopics(_ context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	return 0, nil
}

func (f *fakeDomain) ReevaluateCommentCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reevals++
	return 0, nil
}

func (f *fakeDomain) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...), f.reevals
}

func TestInstancesCallTheirDomainPass(t *testing.T) {
	d := &fakeDomain{}
	log := logging.Discard()
	g := NewGroup(
		NewBanExpiry(d, 2*time.Millisecond, log),
		NewTopicArchival(d, 2*time.Millisecond, log),
		NewCommentCount(d, 2*time.Millisecond, log),
	)
	g.Start(context.Background())
	require.Eventually(t, func() bool {
		sources, reevals := d.snapshot()
		return len(sources) >= 2 && reevals >= 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, stopWithin(t, g, time.Second))

	sources, _ := d.snapshot()
	assert.Contains(t, sources, BanExpiryName)
	assert.Contains(t, sources, TopicArchivalName)
}

func TestCommentCountWaitsOneIntervalFirst(t *testing.T) {
	d := &fakeDomain{}
	s := NewCommentCount(d, time.Hour, logging.Discard())
	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	_, reevals := d.snapshot()
	assert.Zero(t, reevals)
	require.NoError(t, stopWithin(t, s, time.Second))
}

func TestRevocationPurgeDropsExpiredEntries(t *testing.T) {
	reg := revocation.NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Revoke(ctx, "old", 1, time.Now().Add(-time.Second)))
	require.NoError(t, reg.Revoke(ctx, "live", 2, time.Now().Add(time.Hour)))

	s := NewRevocationPurge(reg, 2*time.Millisecond, logging.Discard())
	s.Start(ctx)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, stopWithin(t, s, time.Second))
	assert.True(t, reg.IsRevoked(ctx, "live"))
}
