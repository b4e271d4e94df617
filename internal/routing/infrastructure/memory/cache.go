package memory

import (
	"context"
	"sync"
	"time"

	routing "fuel-registry/internal/routing/domain"
)

// DefaultTTL is how long a routed batch stays cached.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	results  []routing.Result
	storedAt time.Time
}

// Cache is a process-local TTL cache of routed batches.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache constructs a cache. now defaults to time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl, now: now}
}

// Get returns a copy of a non-expired entry.
func (c *Cache) Get(_ context.Context, key string) ([]routing.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false, nil
	}
	return append([]routing.Result(nil), entry.results...), true, nil
}

// Set stores a copy of results.
func (c *Cache) Set(_ context.Context, key string, results []routing.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{results: append([]routing.Result(nil), results...), storedAt: c.now()}
	return nil
}

// Sweep evicts entries older than the TTL and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
