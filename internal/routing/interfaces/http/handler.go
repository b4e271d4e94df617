package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fuel-registry/internal/geo"
	"fuel-registry/internal/routing/application"
	routing "fuel-registry/internal/routing/domain"

	"github.com/rs/zerolog"
)

const (
	distancePath  = "/distance"
	routesPath    = "/routes"
	usagePath     = "/usage"
	usageMapsPath = "/usage/maps"
	// NearbyPath must be registered ahead of the station registry prefix.
	NearbyPath   = "/api/v1/stations/nearby"
	maxBodyBytes = 64 << 10
)

// Distancer batches routed distances.
type Distancer interface {
	BatchDistances(ctx context.Context, origin geo.Point, destinations []geo.Point, opts routing.Options) ([]routing.Result, error)
}

// Handler serves the routing proxy, usage and nearby endpoints.
type Handler struct {
	proxy  Distancer
	quota  *application.QuotaService
	nearby *application.NearbyService
	logger zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(proxy Distancer, quota *application.QuotaService, nearby *application.NearbyService, logger zerolog.Logger) (*Handler, error) {
	if proxy == nil {
		return nil, errors.New("routing handler: nil proxy")
	}
	if quota == nil {
		return nil, errors.New("routing handler: nil quota")
	}
	if nearby == nil {
		return nil, errors.New("routing handler: nil nearby service")
	}
	return &Handler{proxy: proxy, quota: quota, nearby: nearby, logger: logger}, nil
}

// Paths lists the exact paths the handler serves.
func (h *Handler) Paths() []string {
	return []string{distancePath, routesPath, usagePath, usageMapsPath, NearbyPath}
}

// ServeHTTP routes the proxy, usage and nearby endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == distancePath && r.Method == http.MethodGet:
		h.handleDistance(w, r)
	case r.URL.Path == routesPath && r.Method == http.MethodPost:
		h.handleRoutes(w, r)
	case r.URL.Path == usagePath && r.Method == http.MethodGet:
		h.handleUsage(w, r)
	case r.URL.Path == usageMapsPath && r.Method == http.MethodPost:
		h.handleMapLoad(w, r)
	case r.URL.Path == NearbyPath && r.Method == http.MethodGet:
		h.handleNearby(w, r)
	case r.URL.Path == distancePath || r.URL.Path == routesPath || r.URL.Path == usagePath ||
		r.URL.Path == usageMapsPath || r.URL.Path == NearbyPath:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type distanceValue struct {
	Value int64 `json:"value"`
}

type matrixElement struct {
	Status   routing.Status `json:"status"`
	Distance *distanceValue `json:"distance,omitempty"`
	Duration *distanceValue `json:"duration,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type matrixRow struct {
	Elements []matrixElement `json:"elements"`
}

func (h *Handler) handleDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	origins, err := parsePoints(q.Get("origins"))
	if err != nil || len(origins) != 1 {
		respondStatus(w, http.StatusBadRequest, "INVALID_REQUEST", "exactly one valid origin is required")
		return
	}
	destinations, err := parsePoints(q.Get("destinations"))
	if err != nil {
		respondStatus(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	opts := routing.Options{Mode: q.Get("mode"), Units: q.Get("units"), Language: q.Get("language")}

	results, ok := h.batch(w, r, origins[0], destinations, opts)
	if !ok {
		return
	}
	elements := make([]matrixElement, len(results))
	for i, res := range results {
		elements[i] = matrixElement{Status: res.Status, Error: res.Error}
		if res.Status == routing.StatusOK {
			elements[i].Distance = &distanceValue{Value: res.DistanceMeters}
			elements[i].Duration = &distanceValue{Value: res.DurationSeconds}
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "OK",
		"rows":   []matrixRow{{Elements: elements}},
	})
}

type routesRequest struct {
	Origin       geo.Point   `json:"origin"`
	Destinations []geo.Point `json:"destinations"`
	Mode         string      `json:"mode"`
	Units        string      `json:"units"`
	Language     string      `json:"language"`
}

type routeResult struct {
	Status   routing.Status `json:"status"`
	Distance int64          `json:"distance"`
	Duration int64          `json:"duration"`
	Error    string         `json:"error,omitempty"`
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	var req routesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}
	if !req.Origin.Valid() {
		respondStatus(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid origin")
		return
	}
	for _, d := range req.Destinations {
		if !d.Valid() {
			respondStatus(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid destination")
			return
		}
	}
	opts := routing.Options{Mode: req.Mode, Units: req.Units, Language: req.Language}

	results, ok := h.batch(w, r, req.Origin, req.Destinations, opts)
	if !ok {
		return
	}
	out := make([]routeResult, len(results))
	for i, res := range results {
		out[i] = routeResult{Status: res.Status, Distance: res.DistanceMeters, Duration: res.DurationSeconds, Error: res.Error}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK", "results": out})
}

// batch runs the proxy and writes the error response itself when it fails.
func (h *Handler) batch(w http.ResponseWriter, r *http.Request, origin geo.Point, destinations []geo.Point, opts routing.Options) ([]routing.Result, bool) {
	results, err := h.proxy.BatchDistances(r.Context(), origin, destinations, opts)
	switch {
	case err == nil:
		return results, true
	case errors.Is(err, routing.ErrTooManyDestinations):
		respondStatus(w, http.StatusBadRequest, "MAX_DESTINATIONS_EXCEEDED", "at most "+strconv.Itoa(routing.MaxDestinations)+" destinations per request")
	case errors.Is(err, routing.ErrTimeout):
		respondStatus(w, http.StatusGatewayTimeout, "REQUEST_CANCELLED", err.Error())
	default:
		h.logger.Error().Err(err).Msg("routing request failed")
		respondStatus(w, http.StatusInternalServerError, "ERROR", "internal error")
	}
	return nil, false
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.quota.Usage(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("quota read failed")
		respondStatus(w, http.StatusInternalServerError, "ERROR", "internal error")
		return
	}
	respondJSON(w, http.StatusOK, usage)
}

func (h *Handler) handleMapLoad(w http.ResponseWriter, r *http.Request) {
	view, err := h.quota.Record(r.Context(), routing.SurfaceMaps)
	if err != nil {
		h.logger.Error().Err(err).Msg("quota write failed")
		respondStatus(w, http.StatusInternalServerError, "ERROR", "internal error")
		return
	}
	if view.Level != routing.LevelOK {
		h.logger.Warn().Str("surface", string(routing.SurfaceMaps)).Str("level", string(view.Level)).
			Int64("used", view.Used).Int64("limit", view.Limit).Msg("daily quota threshold reached")
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(q.Get("lng")), 64)
	origin := geo.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !origin.Valid() {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "lat and lng are required"})
		return
	}
	opts := routing.Options{Mode: q.Get("mode"), Units: q.Get("units"), Language: q.Get("language")}

	stations, err := h.nearby.Search(r.Context(), origin, opts)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{"stations": stations})
	case errors.Is(err, routing.ErrNoStationsInRadius), errors.Is(err, routing.ErrNoReachableStations):
		respondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, routing.ErrTimeout):
		respondJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	default:
		h.logger.Error().Err(err).Msg("nearby search failed")
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// parsePoints reads "lat,lng|lat,lng". An empty string is an empty list.
func parsePoints(raw string) ([]geo.Point, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, "|")
	out := make([]geo.Point, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(part, ",")
		if len(fields) != 2 {
			return nil, errors.New("coordinates must be lat,lng")
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, errors.New("invalid latitude " + fields[0])
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, errors.New("invalid longitude " + fields[1])
		}
		p := geo.Point{Lat: lat, Lng: lng}
		if !p.Valid() {
			return nil, errors.New("coordinates out of range " + part)
		}
		out = append(out, p)
	}
	return out, nil
}

type errorBody struct {
	Error string `json:"error"`
}

type statusBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func respondStatus(w http.ResponseWriter, code int, status, message string) {
	respondJSON(w, code, statusBody{Status: status, Error: message})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
