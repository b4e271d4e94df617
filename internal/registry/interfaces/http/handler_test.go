package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fuel-registry/internal/audit"
	"fuel-registry/internal/docstore/memory"
	registryapp "fuel-registry/internal/registry/application"
	registry "fuel-registry/internal/registry/domain"

	"github.com/rs/zerolog"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := memory.NewStore()
	resolver, err := registryapp.NewResolver(store)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	codes, _ := registryapp.NewCodeAllocator(store)
	writer, _ := registryapp.NewWriter(store, resolver, codes)
	reader, _ := registryapp.NewReader(store, zerolog.Nop())
	deleter, _ := registryapp.NewDeleter(store, zerolog.Nop())
	analyses, _ := registryapp.NewAnalysisService(store, nil)
	auditRepo := audit.NewRepository(store)

	handler, err := NewHandler(Services{
		Writer:    writer,
		Deleter:   deleter,
		Reader:    reader,
		Analyses:  analyses,
		Validator: registryapp.NewValidator(),
	}, auditRepo, zerolog.Nop())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler
}

func submission() registry.Submission {
	return registry.Submission{
		Name:              "Station Agdal",
		Latitude:          "33.9911",
		Longitude:         "-6.8498",
		BrandName:         "Afriquia",
		ProvinceName:      "Rabat-Salé",
		CommuneName:       "Rabat",
		ManagerNationalID: "A998877",
		Owner:             registry.OwnerInput{Kind: registry.OwnerCorporate, CompanyName: "Petrom SA"},
		DieselLiters:      "30000",
		PremiumLiters:     "20000",
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStationLifecycle(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/v1/stations", submission())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created registry.StationWithDetails
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := created.Station.ID
	if id == "" || created.Station.Code != 1001 || created.Owner == nil || created.Owner.CompanyName != "Petrom SA" {
		t.Fatalf("unexpected created view %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/stations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list struct {
		Stations []registry.StationWithDetails `json:"stations"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Stations) != 1 || list.Stations[0].Brand.Name != "Afriquia" {
		t.Fatalf("unexpected list %+v", list.Stations)
	}

	update := submission()
	update.Name = "Station Agdal II"
	rec = do(t, h, http.MethodPut, "/api/v1/stations/"+id, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/stations/"+id+"/analyses", registry.AnalysisInput{Product: "Gasoil 50", Result: "conforme", Date: "2024-05-01"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add analysis: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/v1/stations/"+id+"/analyses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list analyses: expected 200, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/stations/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/stations/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/stations/"+id+"/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit trail: expected 200, got %d", rec.Code)
	}
	var trail struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&trail); err != nil {
		t.Fatalf("decode audit trail: %v", err)
	}
	actions := map[string]int{}
	for _, entry := range trail.Entries {
		actions[entry.Action]++
		if entry.StationID != id {
			t.Fatalf("entry for another station: %+v", entry)
		}
	}
	for _, action := range []string{"station.create", "station.update", "station.analysis.add", "station.delete"} {
		if actions[action] != 1 {
			t.Fatalf("expected one %s entry, got %v", action, actions)
		}
	}
	if len(trail.Entries) != 4 {
		t.Fatalf("expected 4 audit entries, got %d", len(trail.Entries))
	}
}

func TestAuditTrailWithoutReaderIs404(t *testing.T) {
	store := memory.NewStore()
	resolver, _ := registryapp.NewResolver(store)
	codes, _ := registryapp.NewCodeAllocator(store)
	writer, _ := registryapp.NewWriter(store, resolver, codes)
	reader, _ := registryapp.NewReader(store, zerolog.Nop())
	deleter, _ := registryapp.NewDeleter(store, zerolog.Nop())
	analyses, _ := registryapp.NewAnalysisService(store, nil)
	h, err := NewHandler(Services{Writer: writer, Deleter: deleter, Reader: reader, Analyses: analyses}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/stations/s1/audit", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateRejectsInvalidSubmission(t *testing.T) {
	h := newTestHandler(t)
	sub := submission()
	sub.ManagerNationalID = ""
	sub.Longitude = "west"

	rec := do(t, h, http.MethodPost, "/api/v1/stations", sub)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Fields["manager_national_id"] != "required" || body.Fields["longitude"] != "longitude" {
		t.Fatalf("unexpected fields %v", body.Fields)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stations", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	h := newTestHandler(t)
	if rec := do(t, h, http.MethodPatch, "/api/v1/stations", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/stations/x/y/z", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/api/v1/stations/missing", submission()); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing station, got %d", rec.Code)
	}
}
