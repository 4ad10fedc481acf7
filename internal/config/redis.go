package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the optional Redis server and the revocation
// registry stored in it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	// RevocationPrefix namespaces the registry keys so several deployments
	// can share one server.
	RevocationPrefix string
	// Backend selects the registry: "memory" or "redis".
	Backend string
}

// loadRedisConfig reads REDIS_HOST/REDIS_PORT (or REDIS_ADDR),
// REDIS_PASSWORD, REDIS_DB, REDIS_TLS, REVOCATION_PREFIX and
// REVOCATION_BACKEND.
func loadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:             addr,
		Password:         envStr("REDIS_PASSWORD", ""),
		DB:               envInt("REDIS_DB", 0),
		TLS:              envBool("REDIS_TLS", false),
		RevocationPrefix: envStr("REVOCATION_PREFIX", "forum:revoked"),
		Backend:          envStr("REVOCATION_BACKEND", "memory"),
	}
}

// UsesRedisRegistry reports whether revocations should live in Redis.
func (c RedisConfig) UsesRedisRegistry() bool { return c.Backend == "redis" }

// NewRedisClient connects to the server described by cfg.  It returns nil
// when the server does not answer a ping within two seconds; callers then
// run without rate limiting and response caching, and keep revocations in
// process memory.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
