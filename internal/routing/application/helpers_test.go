package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"fuel-registry/internal/geo"
	routing "fuel-registry/internal/routing/domain"
	"fuel-registry/internal/routing/infrastructure/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubProvider struct {
	calls  atomic.Int32
	status int
	err    error
	block  bool
	noRoute map[int]bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Distances(ctx context.Context, origin geo.Point, destinations []geo.Point, _ routing.Options) (routing.Batch, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return routing.Batch{}, ctx.Err()
	}
	if p.err != nil {
		return routing.Batch{}, p.err
	}
	status := p.status
	if status == 0 {
		status = 200
	}
	if status == 429 {
		return routing.Batch{Results: routing.Fill(len(destinations), routing.StatusRateLimited, "rate limited"), HTTPStatus: status}, nil
	}
	results := make([]routing.Result, len(destinations))
	for i, d := range destinations {
		if p.noRoute[i] {
			results[i] = routing.Result{Status: routing.StatusNoRoute}
			continue
		}
		meters := int64(geo.HaversineKm(origin, d) * 1300)
		results[i] = routing.Result{Status: routing.StatusOK, DistanceMeters: meters, DurationSeconds: meters / 12}
	}
	return routing.Batch{Results: results, HTTPStatus: status}, nil
}

var errUnreachable = errors.New("dial tcp: connection refused")

type testRig struct {
	clock    *manualClock
	cache    *memory.Cache
	counter  *memory.Counter
	quota    *QuotaService
	provider *stubProvider
	proxy    *Proxy
}

func newRig(provider *stubProvider, opts ...ProxyOption) (*testRig, error) {
	clock := newManualClock()
	cache := memory.NewCache(5*time.Minute, clock.Now)
	counter := memory.NewCounter(clock.Now)
	quota, err := NewQuotaService(counter, map[routing.Surface]int64{routing.SurfaceMaps: 10, routing.SurfaceRoutes: 4}, clock)
	if err != nil {
		return nil, err
	}
	proxy, err := NewProxy(provider, cache, quota, opts...)
	if err != nil {
		return nil, err
	}
	return &testRig{clock: clock, cache: cache, counter: counter, quota: quota, provider: provider, proxy: proxy}, nil
}
