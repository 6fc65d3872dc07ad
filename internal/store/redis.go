package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the shared client used by the scan queue and the cache
// backend.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects with short timeouts: a slow Redis must degrade to the
// in-memory paths quickly, not stall scan handling. poolSize <= 0 falls back
// to the driver default.
func NewRedis(addr string, poolSize int) *Redis {
	opts := &redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
		opts.MinIdleConns = poolSize / 4
	}
	return &Redis{Client: redis.NewClient(opts)}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
