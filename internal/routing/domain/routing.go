package routing

import (
	"context"
	"errors"

	"fuel-registry/internal/geo"
)

// MaxDestinations is the largest destination batch accepted per call.
const MaxDestinations = 25

var (
	// ErrTimeout is returned when the routing call exceeds its budget or is cancelled.
	ErrTimeout = errors.New("request cancelled")
	// ErrTooManyDestinations is returned for batches above MaxDestinations.
	ErrTooManyDestinations = errors.New("routing: too many destinations")
	// ErrNoStationsInRadius is returned when the prefilter keeps nothing.
	ErrNoStationsInRadius = errors.New("no stations within radius")
	// ErrNoReachableStations is returned when no candidate has a route.
	ErrNoReachableStations = errors.New("no route-reachable stations")
)

// Status is the outcome for one destination.
type Status string

const (
	StatusOK          Status = "OK"
	StatusNoRoute     Status = "NO_ROUTE"
	StatusRateLimited Status = "RATE_LIMITED"
	StatusError       Status = "ERROR"
)

// Result is the routed distance to one destination.
type Result struct {
	Status          Status `json:"status"`
	DistanceMeters  int64  `json:"distance_meters"`
	DurationSeconds int64  `json:"duration_seconds"`
	Error           string `json:"error,omitempty"`
}

// Fill returns n results carrying the same status.
func Fill(n int, status Status, message string) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{Status: status, Error: message}
	}
	return out
}

// Options tune an upstream request and are part of the cache key.
type Options struct {
	Mode     string `json:"mode"`
	Units    string `json:"units"`
	Language string `json:"language"`
}

// WithDefaults fills empty options with driving, metric and French.
func (o Options) WithDefaults() Options {
	if o.Mode == "" {
		o.Mode = "driving"
	}
	if o.Units == "" {
		o.Units = "metric"
	}
	if o.Language == "" {
		o.Language = "fr"
	}
	return o
}

// Batch is one upstream answer. HTTPStatus is the upstream response code.
type Batch struct {
	Results    []Result
	HTTPStatus int
}

// Cacheable reports whether the upstream answered successfully.
func (b Batch) Cacheable() bool {
	return b.HTTPStatus >= 200 && b.HTTPStatus < 300
}

// Provider queries an external routing API for one origin and many destinations.
// Upstream HTTP failures are reported through result statuses; a returned error
// means no answer was obtained at all.
type Provider interface {
	Name() string
	Distances(ctx context.Context, origin geo.Point, destinations []geo.Point, opts Options) (Batch, error)
}
