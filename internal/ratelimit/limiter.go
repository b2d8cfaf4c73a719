// Package ratelimit implements fixed-window request limits for the public
// verification endpoints, in process or shared through Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/adamscao/certchain/internal/config"
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key within a window
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	Close() error
}

// New returns the limiter selected by cfg: Redis when an address is
// configured, otherwise an in-memory limiter. It returns nil when rate
// limiting is disabled.
func New(cfg config.RateLimitConfig) (Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		return NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
	}
	return NewMemoryLimiter(MemoryLimiterConfig{}), nil
}
