package memory

import (
	"context"
	"sync"
	"time"
)

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// Counter is a process-local keyed counter.
type Counter struct {
	mu     sync.Mutex
	values map[string]counterEntry
	now    func() time.Time
}

// NewCounter constructs a counter. now defaults to time.Now.
func NewCounter(now func() time.Time) *Counter {
	if now == nil {
		now = time.Now
	}
	return &Counter{values: make(map[string]counterEntry), now: now}
}

// Incr adds one to key, starting a fresh count once the previous one expired.
func (c *Counter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.pruneLocked(now)
	entry := c.values[key]
	entry.value++
	if entry.expiresAt.IsZero() && ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.values[key] = entry
	return entry.value, nil
}

// Get returns the current count of key.
func (c *Counter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.values[key]
	if !ok || (!entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt)) {
		return 0, nil
	}
	return entry.value, nil
}

func (c *Counter) pruneLocked(now time.Time) {
	for key, entry := range c.values {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(c.values, key)
		}
	}
}
