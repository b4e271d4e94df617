package application

import (
	"context"
	"errors"

	"fuel-registry/internal/docstore"
	registry "fuel-registry/internal/registry/domain"
)

const (
	// CodeBase is the value below the first display code.
	CodeBase int64 = 1000

	stationCounterID = "stations"
)

// CodeAllocator hands out monotonic station display codes.
type CodeAllocator struct {
	store docstore.Store
}

// NewCodeAllocator constructs an allocator.
func NewCodeAllocator(store docstore.Store) (*CodeAllocator, error) {
	if store == nil {
		return nil, errors.New("code allocator: nil store")
	}
	return &CodeAllocator{store: store}, nil
}

// NextCode increments the station counter inside a store transaction and returns the new value.
// A code is consumed even if the station batch that requested it later fails.
func (a *CodeAllocator) NextCode(ctx context.Context) (int64, error) {
	var next int64
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		current := registry.Counter{Value: CodeBase}
		doc, err := tx.Get(ctx, registry.CollectionCounters, stationCounterID)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := doc.Decode(&current); err != nil {
				return err
			}
			if current.Value < CodeBase {
				current.Value = CodeBase
			}
		}
		next = current.Value + 1
		return tx.Set(ctx, registry.CollectionCounters, stationCounterID, registry.Counter{Value: next})
	})
	if err != nil {
		return 0, storageErr("allocate code", err)
	}
	return next, nil
}
