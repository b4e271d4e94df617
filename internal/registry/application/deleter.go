package application

import (
	"context"
	"errors"
	"time"

	"fuel-registry/internal/docstore"
	"fuel-registry/internal/observability/metrics"
	registry "fuel-registry/internal/registry/domain"

	"github.com/rs/zerolog"
)

var stationChildren = []string{
	registry.CollectionAuthorizations,
	registry.CollectionCapacities,
	registry.CollectionAnalyses,
}

// Deleter removes a station with every row that belongs to it.
// Reference rows are never deleted, even when left unreferenced.
type Deleter struct {
	store  docstore.Store
	logger zerolog.Logger
}

// NewDeleter constructs a deleter.
func NewDeleter(store docstore.Store, logger zerolog.Logger) (*Deleter, error) {
	if store == nil {
		return nil, errors.New("deleter: nil store")
	}
	return &Deleter{store: store, logger: logger}, nil
}

// Delete removes the station aggregate in one batch.
func (d *Deleter) Delete(ctx context.Context, stationID string) error {
	start := time.Now()
	err := d.delete(ctx, stationID)
	metrics.ObserveStationOp("delete", metrics.ResultOf(err), time.Since(start))
	return err
}

func (d *Deleter) delete(ctx context.Context, stationID string) error {
	if stationID == "" {
		return registry.ErrNotFound
	}
	if _, err := d.store.Get(ctx, registry.CollectionStations, stationID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return registry.ErrNotFound
		}
		return storageErr("load station", err)
	}

	var ops []docstore.Op
	for _, collection := range stationChildren {
		docs, err := d.store.FindEqual(ctx, collection, "station_id", stationID)
		if err != nil {
			return storageErr("find "+collection, err)
		}
		for _, doc := range docs {
			ops = append(ops, docstore.Delete(collection, doc.ID))
		}
	}
	ops = append(ops, docstore.Delete(registry.CollectionStations, stationID))

	if err := d.store.Commit(ctx, ops); err != nil {
		return storageErr("commit delete", err)
	}
	d.logger.Debug().Str("station_id", stationID).Int("rows", len(ops)).Msg("station deleted")
	return nil
}
