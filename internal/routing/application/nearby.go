package application

import (
	"context"
	"errors"
	"sort"

	"fuel-registry/internal/geo"
	routing "fuel-registry/internal/routing/domain"
)

const (
	defaultRadiusKm      = 20
	defaultMaxCandidates = routing.MaxDestinations
)

// StationLocation is a station as seen by the nearby search.
type StationLocation struct {
	ID        string    `json:"id"`
	Code      int64     `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	BrandName string    `json:"brand_name"`
	Point     geo.Point `json:"location"`
	Located   bool      `json:"-"`
}

// StationSource lists station locations.
type StationSource interface {
	Locations(ctx context.Context) ([]StationLocation, error)
}

// DistanceProxy resolves routed distances for a batch of destinations.
type DistanceProxy interface {
	BatchDistances(ctx context.Context, origin geo.Point, destinations []geo.Point, opts routing.Options) ([]routing.Result, error)
}

// NearbyStation is one reachable station with its routed distance.
type NearbyStation struct {
	Station         StationLocation `json:"station"`
	StraightKm      float64         `json:"straight_km"`
	DistanceMeters  int64           `json:"distance_meters"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// NearbyService finds the stations closest by road to a point.
type NearbyService struct {
	source        StationSource
	proxy         DistanceProxy
	radiusKm      float64
	maxCandidates int
}

// NearbyOption customizes the service.
type NearbyOption func(*NearbyService)

// WithRadiusKm overrides the prefilter radius.
func WithRadiusKm(radius float64) NearbyOption {
	return func(s *NearbyService) {
		if radius > 0 {
			s.radiusKm = radius
		}
	}
}

// WithMaxCandidates overrides how many prefiltered stations are routed.
func WithMaxCandidates(n int) NearbyOption {
	return func(s *NearbyService) {
		if n > 0 && n <= routing.MaxDestinations {
			s.maxCandidates = n
		}
	}
}

// NewNearbyService constructs the service.
func NewNearbyService(source StationSource, proxy DistanceProxy, opts ...NearbyOption) (*NearbyService, error) {
	if source == nil {
		return nil, errors.New("nearby: nil station source")
	}
	if proxy == nil {
		return nil, errors.New("nearby: nil distance proxy")
	}
	s := &NearbyService{source: source, proxy: proxy, radiusKm: defaultRadiusKm, maxCandidates: defaultMaxCandidates}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search prefilters stations around origin, routes the survivors and returns
// the reachable ones ordered by road distance.
func (s *NearbyService) Search(ctx context.Context, origin geo.Point, opts routing.Options) ([]NearbyStation, error) {
	stations, err := s.source.Locations(ctx)
	if err != nil {
		return nil, err
	}
	candidates := geo.Filter(origin, stations, func(l StationLocation) (geo.Point, bool) {
		return l.Point, l.Located
	}, s.radiusKm, s.maxCandidates)
	if len(candidates) == 0 {
		return nil, routing.ErrNoStationsInRadius
	}

	destinations := make([]geo.Point, len(candidates))
	for i, c := range candidates {
		destinations[i] = c.Point
	}
	results, err := s.proxy.BatchDistances(ctx, origin, destinations, opts)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyStation, 0, len(candidates))
	for i, c := range candidates {
		if i >= len(results) || results[i].Status != routing.StatusOK {
			continue
		}
		out = append(out, NearbyStation{
			Station:         c.Item,
			StraightKm:      c.DistanceKm,
			DistanceMeters:  results[i].DistanceMeters,
			DurationSeconds: results[i].DurationSeconds,
		})
	}
	if len(out) == 0 {
		return nil, routing.ErrNoReachableStations
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}
