package application

import (
	"context"
	"time"

	routing "fuel-registry/internal/routing/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Cache stores upstream result arrays by request signature.
type Cache interface {
	Get(ctx context.Context, key string) ([]routing.Result, bool, error)
	Set(ctx context.Context, key string, results []routing.Result) error
}

// Sweepable is a cache that must evict expired entries itself.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Counter is a keyed counter with expiry.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}
