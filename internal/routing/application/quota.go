package application

import (
	"context"
	"errors"
	"time"

	"fuel-registry/internal/observability/metrics"
	routing "fuel-registry/internal/routing/domain"
)

const quotaKeyTTL = 48 * time.Hour

// QuotaService accounts daily external API usage per surface. It never blocks calls.
type QuotaService struct {
	counter Counter
	limits  map[routing.Surface]int64
	clock   Clock
}

// NewQuotaService constructs the service. Surfaces without a limit are unlimited.
func NewQuotaService(counter Counter, limits map[routing.Surface]int64, clock Clock) (*QuotaService, error) {
	if counter == nil {
		return nil, errors.New("quota: nil counter")
	}
	if clock == nil {
		clock = systemClock{}
	}
	copied := make(map[routing.Surface]int64, len(limits))
	for surface, limit := range limits {
		copied[surface] = limit
	}
	return &QuotaService{counter: counter, limits: copied, clock: clock}, nil
}

// Key returns the counter identity of a surface for the current UTC day.
func (q *QuotaService) Key(surface routing.Surface) string {
	return "quota:" + string(surface) + ":" + q.clock.Now().UTC().Format("2006-01-02")
}

// Record counts one call against a surface and returns the updated view.
func (q *QuotaService) Record(ctx context.Context, surface routing.Surface) (routing.QuotaView, error) {
	used, err := q.counter.Incr(ctx, q.Key(surface), quotaKeyTTL)
	if err != nil {
		return routing.QuotaView{}, err
	}
	view := routing.NewQuotaView(used, q.limits[surface])
	metrics.SetQuota(string(surface), view.Used, view.Limit)
	return view, nil
}

// View returns today's usage of a surface.
func (q *QuotaService) View(ctx context.Context, surface routing.Surface) (routing.QuotaView, error) {
	used, err := q.counter.Get(ctx, q.Key(surface))
	if err != nil {
		return routing.QuotaView{}, err
	}
	return routing.NewQuotaView(used, q.limits[surface]), nil
}

// Usage returns today's usage of every surface.
func (q *QuotaService) Usage(ctx context.Context) (routing.Usage, error) {
	maps, err := q.View(ctx, routing.SurfaceMaps)
	if err != nil {
		return routing.Usage{}, err
	}
	routes, err := q.View(ctx, routing.SurfaceRoutes)
	if err != nil {
		return routing.Usage{}, err
	}
	return routing.Usage{Maps: maps, Routes: routes}, nil
}
