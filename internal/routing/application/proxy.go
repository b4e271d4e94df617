package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"fuel-registry/internal/geo"
	"fuel-registry/internal/observability/metrics"
	routing "fuel-registry/internal/routing/domain"

	"github.com/rs/zerolog"
)

const defaultProxyTimeout = 15 * time.Second

// Proxy fronts the routing provider with a response cache and usage accounting.
type Proxy struct {
	provider routing.Provider
	cache    Cache
	quota    *QuotaService
	timeout  time.Duration
	logger   zerolog.Logger
}

// ProxyOption customizes the proxy.
type ProxyOption func(*Proxy)

// WithTimeout overrides the upstream call budget.
func WithTimeout(timeout time.Duration) ProxyOption {
	return func(p *Proxy) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithProxyLogger assigns a logger.
func WithProxyLogger(logger zerolog.Logger) ProxyOption {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// NewProxy constructs a proxy.
func NewProxy(provider routing.Provider, cache Cache, quota *QuotaService, opts ...ProxyOption) (*Proxy, error) {
	if provider == nil {
		return nil, errors.New("routing proxy: nil provider")
	}
	if cache == nil {
		return nil, errors.New("routing proxy: nil cache")
	}
	if quota == nil {
		return nil, errors.New("routing proxy: nil quota")
	}
	p := &Proxy{
		provider: provider,
		cache:    cache,
		quota:    quota,
		timeout:  defaultProxyTimeout,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CacheKey is the request signature: options then rounded coordinates, pipe-joined.
func CacheKey(opts routing.Options, origin geo.Point, destinations []geo.Point) string {
	parts := make([]string, 0, 4+len(destinations))
	parts = append(parts, opts.Mode, opts.Units, opts.Language, formatPoint(origin.Rounded()))
	for _, d := range destinations {
		parts = append(parts, formatPoint(d.Rounded()))
	}
	return strings.Join(parts, "|")
}

func formatPoint(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

// BatchDistances returns one result per destination in input order.
// Per-destination failures are statuses; the error is reserved for oversized
// batches and for ErrTimeout.
func (p *Proxy) BatchDistances(ctx context.Context, origin geo.Point, destinations []geo.Point, opts routing.Options) ([]routing.Result, error) {
	if len(destinations) > routing.MaxDestinations {
		return nil, routing.ErrTooManyDestinations
	}
	if len(destinations) == 0 {
		return []routing.Result{}, nil
	}
	opts = opts.WithDefaults()
	origin = origin.Rounded()
	rounded := make([]geo.Point, len(destinations))
	for i, d := range destinations {
		rounded[i] = d.Rounded()
	}

	key := CacheKey(opts, origin, rounded)
	cached, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn().Err(err).Msg("route cache read failed")
	}
	if ok && len(cached) == len(rounded) {
		metrics.IncRoutingCache(true)
		return cached, nil
	}
	metrics.IncRoutingCache(false)

	if _, err := p.quota.Record(ctx, routing.SurfaceRoutes); err != nil {
		p.logger.Warn().Err(err).Msg("routes quota not recorded")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	batch, err := p.provider.Distances(callCtx, origin, rounded, opts)
	if err != nil {
		if callCtx.Err() != nil {
			metrics.ObserveRoutingUpstream(p.provider.Name(), "timeout", time.Since(start))
			return nil, routing.ErrTimeout
		}
		metrics.ObserveRoutingUpstream(p.provider.Name(), metrics.ResultError, time.Since(start))
		p.logger.Warn().Err(err).Str("provider", p.provider.Name()).Msg("routing upstream unreachable")
		return routing.Fill(len(rounded), routing.StatusError, err.Error()), nil
	}
	metrics.ObserveRoutingUpstream(p.provider.Name(), strconv.Itoa(batch.HTTPStatus), time.Since(start))

	results := alignResults(batch.Results, len(rounded))
	for _, r := range results {
		metrics.IncRoutingElement(string(r.Status))
	}
	if batch.Cacheable() {
		if err := p.cache.Set(ctx, key, results); err != nil {
			p.logger.Warn().Err(err).Msg("route cache write failed")
		}
	}
	return results, nil
}

// alignResults pads or trims provider output to one result per destination.
func alignResults(results []routing.Result, n int) []routing.Result {
	out := make([]routing.Result, n)
	for i := range out {
		if i < len(results) && results[i].Status != "" {
			out[i] = results[i]
			continue
		}
		out[i] = routing.Result{Status: routing.StatusError, Error: "missing upstream element"}
	}
	return out
}
