package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fuel-registry/internal/geo"
	"fuel-registry/internal/routing/application"
	routing "fuel-registry/internal/routing/domain"
	"fuel-registry/internal/routing/infrastructure/memory"

	"github.com/rs/zerolog"
)

type fakeProvider struct {
	calls atomic.Int32
	block bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Distances(ctx context.Context, origin geo.Point, destinations []geo.Point, _ routing.Options) (routing.Batch, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return routing.Batch{}, ctx.Err()
	}
	results := make([]routing.Result, len(destinations))
	for i, d := range destinations {
		if d.Lat > 40 {
			results[i] = routing.Result{Status: routing.StatusNoRoute}
			continue
		}
		meters := int64(geo.HaversineKm(origin, d) * 1250)
		results[i] = routing.Result{Status: routing.StatusOK, DistanceMeters: meters, DurationSeconds: meters / 10}
	}
	return routing.Batch{Results: results, HTTPStatus: http.StatusOK}, nil
}

type stations []application.StationLocation

func (s stations) Locations(context.Context) ([]application.StationLocation, error) { return s, nil }

func newTestHandler(t *testing.T, provider *fakeProvider, source application.StationSource) *Handler {
	t.Helper()
	quota, err := application.NewQuotaService(memory.NewCounter(nil), map[routing.Surface]int64{routing.SurfaceMaps: 2, routing.SurfaceRoutes: 100}, nil)
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	proxy, err := application.NewProxy(provider, memory.NewCache(5*time.Minute, nil), quota, application.WithTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if source == nil {
		source = stations{}
	}
	nearby, err := application.NewNearbyService(source, proxy)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	h, err := NewHandler(proxy, quota, nearby, zerolog.Nop())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return h
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDistanceMatrixShape(t *testing.T) {
	provider := &fakeProvider{}
	h := newTestHandler(t, provider, nil)

	rec := serve(h, http.MethodGet, "/distance?origins=34.0209,-6.8416&destinations=33.9912,-6.8494|41.0,-6.0&mode=driving", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		Rows   []struct {
			Elements []struct {
				Status   string `json:"status"`
				Distance *struct {
					Value int64 `json:"value"`
				} `json:"distance"`
				Duration *struct {
					Value int64 `json:"value"`
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "OK" || len(resp.Rows) != 1 || len(resp.Rows[0].Elements) != 2 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	first, second := resp.Rows[0].Elements[0], resp.Rows[0].Elements[1]
	if first.Status != "OK" || first.Distance == nil || first.Distance.Value <= 0 || first.Duration == nil {
		t.Fatalf("unexpected first element: %+v", first)
	}
	if second.Status != "NO_ROUTE" || second.Distance != nil {
		t.Fatalf("unexpected second element: %+v", second)
	}

	serve(h, http.MethodGet, "/distance?origins=34.0209,-6.8416&destinations=33.9912,-6.8494|41.0,-6.0&mode=driving", nil)
	if provider.calls.Load() != 1 {
		t.Fatalf("expected cached repeat, got %d upstream calls", provider.calls.Load())
	}
}

func TestDistanceRejectsBadInput(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, nil)

	dests := make([]string, routing.MaxDestinations+1)
	for i := range dests {
		dests[i] = fmt.Sprintf("34.%d,-6.8", i)
	}
	cases := []string{
		"/distance?destinations=33.99,-6.84",
		"/distance?origins=abc&destinations=33.99,-6.84",
		"/distance?origins=34,-6|35,-6&destinations=33.99,-6.84",
		"/distance?origins=34,-6&destinations=95,-6",
		"/distance?origins=34,-6&destinations=" + strings.Join(dests, "|"),
	}
	for _, target := range cases {
		if rec := serve(h, http.MethodGet, target, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestRoutesEndpoint(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, nil)

	body := []byte(`{"origin":{"lat":34.0209,"lng":-6.8416},"destinations":[{"lat":33.9912,"lng":-6.8494},{"lat":41.2,"lng":-6.1}]}`)
	rec := serve(h, http.MethodPost, "/routes", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Status   string `json:"status"`
			Distance int64  `json:"distance"`
			Duration int64  `json:"duration"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "OK" || len(resp.Results) != 2 || resp.Results[0].Status != "OK" || resp.Results[0].Distance <= 0 || resp.Results[1].Status != "NO_ROUTE" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	if rec := serve(h, http.MethodPost, "/routes", []byte(`{"origin":`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/routes", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestTimeoutMapsToGatewayTimeout(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{block: true}, nil)

	rec := serve(h, http.MethodPost, "/routes", []byte(`{"origin":{"lat":34.02,"lng":-6.84},"destinations":[{"lat":33.99,"lng":-6.85}]}`))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body statusBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "REQUEST_CANCELLED" {
		t.Fatalf("unexpected status %q", body.Status)
	}
}

func TestUsageEndpoints(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, nil)

	for i := 0; i < 2; i++ {
		if rec := serve(h, http.MethodPost, "/usage/maps", nil); rec.Code != http.StatusOK {
			t.Fatalf("record map load: %d", rec.Code)
		}
	}
	serve(h, http.MethodPost, "/routes", []byte(`{"origin":{"lat":34.02,"lng":-6.84},"destinations":[{"lat":33.99,"lng":-6.85}]}`))

	rec := serve(h, http.MethodGet, "/usage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage: %d", rec.Code)
	}
	var usage routing.Usage
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if usage.Maps.Used != 2 || !usage.Maps.Exceeded || usage.Maps.Level != routing.LevelExceeded {
		t.Fatalf("unexpected maps usage: %+v", usage.Maps)
	}
	if usage.Routes.Used != 1 || usage.Routes.Level != routing.LevelOK {
		t.Fatalf("unexpected routes usage: %+v", usage.Routes)
	}
}

func TestNearbyEndpoint(t *testing.T) {
	source := stations{
		{ID: "far", Name: "Agdal", Point: geo.Point{Lat: 33.9912, Lng: -6.8494}, Located: true},
		{ID: "near", Name: "Hassan", Point: geo.Point{Lat: 34.024, Lng: -6.8228}, Located: true},
	}
	h := newTestHandler(t, &fakeProvider{}, source)

	rec := serve(h, http.MethodGet, "/api/v1/stations/nearby?lat=34.020882&lng=-6.84165", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Stations []application.NearbyStation `json:"stations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Stations) != 2 || resp.Stations[0].Station.ID != "near" {
		t.Fatalf("unexpected order: %s", rec.Body.String())
	}

	rec = serve(h, http.MethodGet, "/api/v1/stations/nearby?lat=31.6295&lng=-7.9811", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "no stations within radius") {
		t.Fatalf("expected radius 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(h, http.MethodGet, "/api/v1/stations/nearby?lat=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNearbyUnreachable(t *testing.T) {
	source := stations{{ID: "north", Point: geo.Point{Lat: 41.0, Lng: -6.0}, Located: true}}
	h := newTestHandler(t, &fakeProvider{}, source)

	rec := serve(h, http.MethodGet, "/api/v1/stations/nearby?lat=41.05&lng=-6.0", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "no route-reachable stations") {
		t.Fatalf("expected reachability 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
