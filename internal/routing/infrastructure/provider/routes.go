package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fuel-registry/internal/geo"
	routing "fuel-registry/internal/routing/domain"
)

// DefaultRoutesBaseURL is the compute-route-matrix origin.
const DefaultRoutesBaseURL = "https://routes.googleapis.com"

const (
	routesPath      = "/distanceMatrix/v2:computeRouteMatrix"
	routesFieldMask = "originIndex,destinationIndex,status,condition,distanceMeters,duration"
)

// Routes queries the compute-route-matrix POST endpoint.
type Routes struct {
	c *client
}

var _ routing.Provider = (*Routes)(nil)

// NewRoutes constructs a route-matrix provider.
func NewRoutes(apiKey string, opts ...Option) (*Routes, error) {
	if apiKey == "" {
		return nil, errors.New("provider routes: empty api key")
	}
	return &Routes{c: newClient(DefaultRoutesBaseURL, apiKey, opts)}, nil
}

// Name implements routing.Provider.
func (r *Routes) Name() string { return "routes" }

type waypoint struct {
	Waypoint struct {
		Location struct {
			LatLng latLng `json:"latLng"`
		} `json:"location"`
	} `json:"waypoint"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesRequest struct {
	Origins      []waypoint `json:"origins"`
	Destinations []waypoint `json:"destinations"`
	TravelMode   string     `json:"travelMode"`
	Units        string     `json:"units"`
	LanguageCode string     `json:"languageCode"`
}

type routesElement struct {
	OriginIndex      int    `json:"originIndex"`
	DestinationIndex *int   `json:"destinationIndex"`
	Condition        string `json:"condition"`
	DistanceMeters   int64  `json:"distanceMeters"`
	Duration         string `json:"duration"`
	Status           *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

func newWaypoint(p geo.Point) waypoint {
	var w waypoint
	w.Waypoint.Location.LatLng = latLng{Latitude: p.Lat, Longitude: p.Lng}
	return w
}

// Distances implements routing.Provider.
func (r *Routes) Distances(ctx context.Context, origin geo.Point, destinations []geo.Point, opts routing.Options) (routing.Batch, error) {
	n := len(destinations)
	req := routesRequest{
		Origins:      []waypoint{newWaypoint(origin)},
		Destinations: make([]waypoint, n),
		TravelMode:   travelMode(opts.Mode),
		Units:        strings.ToUpper(opts.Units),
		LanguageCode: opts.Language,
	}
	if req.Units != "IMPERIAL" {
		req.Units = "METRIC"
	}
	for i, d := range destinations {
		req.Destinations[i] = newWaypoint(d)
	}
	headers := map[string]string{
		"X-Goog-Api-Key":   r.c.apiKey,
		"X-Goog-FieldMask": routesFieldMask,
	}

	var elements []routesElement
	status, err := r.c.doJSON(ctx, http.MethodPost, routesPath, headers, req, &elements)
	if errors.Is(err, errMalformed) {
		return malformedBatch(n, err), nil
	}
	if err != nil {
		return routing.Batch{}, err
	}
	if status < 200 || status >= 300 {
		return failedBatch(n, status), nil
	}

	results := make([]routing.Result, n)
	for i := range results {
		results[i] = routing.Result{Status: routing.StatusError, Error: "missing upstream element"}
	}
	for _, e := range elements {
		idx := 0
		if e.DestinationIndex != nil {
			idx = *e.DestinationIndex
		}
		if idx < 0 || idx >= n {
			continue
		}
		results[idx] = routesResult(e)
	}
	return routing.Batch{Results: results, HTTPStatus: status}, nil
}

func routesResult(e routesElement) routing.Result {
	if e.Status != nil && e.Status.Code != 0 {
		return routing.Result{Status: routing.StatusError, Error: e.Status.Message}
	}
	switch e.Condition {
	case "ROUTE_EXISTS":
		return routing.Result{Status: routing.StatusOK, DistanceMeters: e.DistanceMeters, DurationSeconds: parseDuration(e.Duration)}
	case "ROUTE_NOT_FOUND":
		return routing.Result{Status: routing.StatusNoRoute}
	default:
		return routing.Result{Status: routing.StatusError, Error: "unknown route condition " + e.Condition}
	}
}

// parseDuration reads the "123s" form; fractional seconds are truncated.
func parseDuration(s string) int64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "s")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(v)
}

func travelMode(mode string) string {
	switch strings.ToLower(mode) {
	case "walking":
		return "WALK"
	case "bicycling":
		return "BICYCLE"
	case "transit":
		return "TRANSIT"
	default:
		return "DRIVE"
	}
}
