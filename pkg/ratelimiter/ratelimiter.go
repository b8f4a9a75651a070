// Package ratelimiter is a token bucket limiter with pluggable storage and
// HTTP middleware that reports the standard X-RateLimit headers.
package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config describes one bucket. It is loaded from the environment for the
// public billing endpoints.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL" envDefault:"10"`
	RefillInterval time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"1m"`
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval %s", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Result is the bucket state after a call. A negative Remaining means the
// call was denied.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (r Result) Allowed() bool { return r.Remaining >= 0 }

// RetryAfter is zero for allowed calls.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Store keeps bucket state. ConsumeTokens refills the bucket for the time
// elapsed since the last call, then subtracts tokens. It must be atomic per
// key.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

// Limiter is what the middleware needs.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type Bucket struct {
	store Store
	cfg   Config
}

func NewBucket(store Store, cfg Config) (*Bucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, cfg: cfg}, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if n <= 0 {
		return Result{}, ErrInvalidTokenCount
	}
	remaining, resetAt, err := b.store.ConsumeTokens(ctx, key, n, b.cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{Limit: b.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}
