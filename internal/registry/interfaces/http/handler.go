package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fuel-registry/internal/audit"
	registryapp "fuel-registry/internal/registry/application"
	registry "fuel-registry/internal/registry/domain"

	"github.com/rs/zerolog"
)

const (
	stationsPath   = "/api/v1/stations"
	stationsPrefix = "/api/v1/stations/"
	maxBodyBytes   = 1 << 20
)

// Services bundles the station use cases served over HTTP.
type Services struct {
	Writer    *registryapp.Writer
	Deleter   *registryapp.Deleter
	Reader    *registryapp.Reader
	Analyses  *registryapp.AnalysisService
	Validator *registryapp.Validator
}

// Handler serves station registry endpoints.
type Handler struct {
	svc         Services
	auditLogger audit.Logger
	trail       audit.Trail
	logger      zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(svc Services, auditLogger audit.Logger, logger zerolog.Logger) (*Handler, error) {
	if svc.Writer == nil || svc.Deleter == nil || svc.Reader == nil || svc.Analyses == nil {
		return nil, errors.New("registry handler: nil service")
	}
	if svc.Validator == nil {
		svc.Validator = registryapp.NewValidator()
	}
	h := &Handler{svc: svc, auditLogger: auditLogger, logger: logger}
	if trail, ok := auditLogger.(audit.Trail); ok {
		h.trail = trail
	}
	return h, nil
}

// ServeHTTP routes /api/v1/stations, /api/v1/stations/{id}, /api/v1/stations/{id}/analyses
// and /api/v1/stations/{id}/audit.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == stationsPath || r.URL.Path == stationsPrefix {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if !strings.HasPrefix(r.URL.Path, stationsPrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, stationsPrefix), "/")
	stationID := parts[0]
	if stationID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, stationID)
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.handleUpdate(w, r, stationID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, stationID)
	case len(parts) == 2 && parts[1] == "analyses" && r.Method == http.MethodGet:
		h.handleListAnalyses(w, r, stationID)
	case len(parts) == 2 && parts[1] == "analyses" && r.Method == http.MethodPost:
		h.handleAddAnalysis(w, r, stationID)
	case len(parts) == 2 && parts[1] == "audit" && r.Method == http.MethodGet:
		h.handleAuditTrail(w, r, stationID)
	case len(parts) <= 2:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		views []registry.StationWithDetails
		err   error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("ids")); raw != "" {
		views, err = h.svc.Reader.ListByIDs(r.Context(), splitIDs(raw))
	} else {
		views, err = h.svc.Reader.ListAll(r.Context())
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if views == nil {
		views = []registry.StationWithDetails{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"stations": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, stationID string) {
	view, err := h.svc.Reader.Get(r.Context(), stationID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}
	stationID, err := h.svc.Writer.Create(r.Context(), sub)
	if err != nil {
		h.respondError(w, err)
		return
	}
	view, err := h.svc.Reader.Get(r.Context(), stationID)
	if err != nil {
		respondJSON(w, http.StatusCreated, map[string]string{"id": stationID})
	} else {
		respondJSON(w, http.StatusCreated, view)
	}
	h.logAudit(r, "station.create", stationID, map[string]any{"name": sub.Name, "brand": sub.BrandName})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, stationID string) {
	sub, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}
	if err := h.svc.Writer.Update(r.Context(), stationID, sub); err != nil {
		h.respondError(w, err)
		return
	}
	view, err := h.svc.Reader.Get(r.Context(), stationID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
	h.logAudit(r, "station.update", stationID, map[string]any{"name": sub.Name})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, stationID string) {
	if err := h.svc.Deleter.Delete(r.Context(), stationID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "station.delete", stationID, nil)
}

func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request, stationID string) {
	list, err := h.svc.Analyses.List(r.Context(), stationID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"analyses": list})
}

func (h *Handler) handleAddAnalysis(w http.ResponseWriter, r *http.Request, stationID string) {
	var input registry.AnalysisInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if err := h.svc.Validator.ValidateAnalysis(input).Err(); err != nil {
		h.respondError(w, err)
		return
	}
	analysis, err := h.svc.Analyses.Add(r.Context(), stationID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, analysis)
	h.logAudit(r, "station.analysis.add", stationID, map[string]any{"analysis_id": analysis.ID, "product": analysis.Product})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request, stationID string) {
	if h.trail == nil {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "audit trail unavailable"})
		return
	}
	entries, err := h.trail.ListByStation(r.Context(), stationID)
	if err != nil {
		h.logger.Error().Err(err).Str("station_id", stationID).Msg("audit trail read failed")
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) decodeSubmission(w http.ResponseWriter, r *http.Request) (registry.Submission, bool) {
	var sub registry.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return sub, false
	}
	if err := h.svc.Validator.Validate(sub).Err(); err != nil {
		h.respondError(w, err)
		return sub, false
	}
	return sub, true
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		validationErr *registryapp.ValidationError
		storageErr    *registryapp.StorageError
	)
	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid submission", Fields: validationErr.Fields})
	case errors.Is(err, registry.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "station not found"})
	case errors.Is(err, registryapp.ErrEmptyNaturalKey):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &storageErr):
		h.logger.Error().Err(err).Str("op", storageErr.Op).Msg("station storage failure")
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "the station could not be saved, please retry"})
	default:
		h.logger.Error().Err(err).Msg("station request failed")
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *Handler) logAudit(r *http.Request, action, stationID string, metadata map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var raw json.RawMessage
	if metadata != nil {
		raw, _ = json.Marshal(metadata)
	}
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        audit.Actor(r),
		Action:       action,
		ResourceType: "station",
		ResourceID:   stationID,
		StationID:    stationID,
		Metadata:     raw,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
