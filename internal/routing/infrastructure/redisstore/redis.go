// Package redisstore keeps the route cache and quota counters in Redis so they
// survive restarts and are shared between instances.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	routing "fuel-registry/internal/routing/domain"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCachePrefix = "routing:cache:"
	defaultTTL         = 5 * time.Minute
)

// NewClient parses redisURL and checks connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Cache stores routed batches as JSON with a server-side expiry.
// Expiry is handled by Redis, so there is nothing to sweep.
type Cache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewCache constructs a cache.
func NewCache(rdb redis.Cmdable, ttl time.Duration) (*Cache, error) {
	if rdb == nil {
		return nil, errors.New("redis cache: nil client")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, prefix: defaultCachePrefix, ttl: ttl}, nil
}

// Get returns the cached results for key.
func (c *Cache) Get(ctx context.Context, key string) ([]routing.Result, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var results []routing.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// Set stores results under key.
func (c *Cache) Set(ctx context.Context, key string, results []routing.Result) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// Counter keeps quota counters with INCR and EXPIRE.
type Counter struct {
	rdb redis.Cmdable
}

// NewCounter constructs a counter.
func NewCounter(rdb redis.Cmdable) (*Counter, error) {
	if rdb == nil {
		return nil, errors.New("redis counter: nil client")
	}
	return &Counter{rdb: rdb}, nil
}

// Incr increments key and refreshes its expiry. Keys carry the day, so a
// sliding expiry only delays cleanup.
func (c *Counter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get returns the current value of key, zero when absent.
func (c *Counter) Get(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}
