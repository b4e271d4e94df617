package application

import (
	"context"
	"errors"
	"sort"
	"strings"

	"fuel-registry/internal/docstore"
	registry "fuel-registry/internal/registry/domain"

	"github.com/google/uuid"
)

// AnalysisService records fuel quality analyses of a station.
type AnalysisService struct {
	store docstore.Store
	clock Clock
	newID func() string
}

// NewAnalysisService constructs the service.
func NewAnalysisService(store docstore.Store, clock Clock) (*AnalysisService, error) {
	if store == nil {
		return nil, errors.New("analysis service: nil store")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &AnalysisService{store: store, clock: clock, newID: uuid.NewString}, nil
}

// Add stores a new analysis for an existing station.
func (s *AnalysisService) Add(ctx context.Context, stationID string, input registry.AnalysisInput) (registry.Analysis, error) {
	if _, err := s.store.Get(ctx, registry.CollectionStations, stationID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return registry.Analysis{}, registry.ErrNotFound
		}
		return registry.Analysis{}, storageErr("load station", err)
	}
	analysis := registry.Analysis{
		ID:        s.newID(),
		Product:   strings.TrimSpace(input.Product),
		Code:      strings.TrimSpace(input.Code),
		Result:    strings.TrimSpace(input.Result),
		Date:      strings.TrimSpace(input.Date),
		StationID: stationID,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.Commit(ctx, []docstore.Op{
		docstore.Set(registry.CollectionAnalyses, analysis.ID, analysis),
	}); err != nil {
		return registry.Analysis{}, storageErr("commit analysis", err)
	}
	return analysis, nil
}

// List returns the analyses of a station, newest date first.
func (s *AnalysisService) List(ctx context.Context, stationID string) ([]registry.Analysis, error) {
	docs, err := s.store.FindEqual(ctx, registry.CollectionAnalyses, "station_id", stationID)
	if err != nil {
		return nil, storageErr("find analyses", err)
	}
	out := make([]registry.Analysis, 0, len(docs))
	for _, doc := range docs {
		var analysis registry.Analysis
		if err := doc.Decode(&analysis); err != nil {
			return nil, storageErr("decode analysis", err)
		}
		out = append(out, analysis)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
