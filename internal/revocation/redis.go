package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry shares revocations between instances.  Each token is
// stored under a hash of its value with a TTL equal to its remaining
// lifetime; a per-user set indexes the token keys so Release is exact.
type RedisRegistry struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisRegistry returns a registry storing keys under prefix.
func NewRedisRegistry(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisRegistry {
	if prefix == "" {
		prefix = "forum:revoked"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRegistry{rdb: rdb, prefix: prefix, logger: logger, now: time.Now}
}

var _ Registry = (*RedisRegistry)(nil)

func (r *RedisRegistry) tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + ":tok:" + hex.EncodeToString(sum[:])
}

func (r *RedisRegistry) userKey(userID uint64) string {
	return r.prefix + ":user:" + strconv.FormatUint(userID, 10)
}

func (r *RedisRegistry) Revoke(ctx context.Context, token string, userID uint64, expiresAt time.Time) error {
	if token == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	key, userKey := r.tokenKey(token), r.userKey(userID)
	// The index lives as long as its longest member.
	current, err := r.rdb.PTTL(ctx, userKey).Result()
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, strconv.FormatUint(userID, 10), ttl)
		pipe.SAdd(ctx, userKey, key)
		if current < ttl {
			pipe.PExpire(ctx, userKey, ttl)
		}
		return nil
	})
	return err
}

// IsRevoked fails open: when Redis cannot be reached the token is treated
// as not revoked and the error is logged.  It still expires naturally.
func (r *RedisRegistry) IsRevoked(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	n, err := r.rdb.Exists(ctx, r.tokenKey(token)).Result()
	if err != nil {
		r.logger.Error("revocation lookup failed", "err", err)
		return false
	}
	return n > 0
}

func (r *RedisRegistry) Release(ctx context.Context, userID uint64) (int, error) {
	userKey := r.userKey(userID)
	keys, err := r.rdb.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	var del *redis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(del.Val()), nil
}

// Purge is a no-op for Redis: token keys carry their own TTL and the user
// index expires with its longest-lived member.
func (r *RedisRegistry) Purge(context.Context, time.Time) int { return 0 }
