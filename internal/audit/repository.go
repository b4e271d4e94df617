package audit

import (
	"context"
	"errors"
	"sort"
	"time"

	"fuel-registry/internal/docstore"
)

// Repository appends audit entries to the document store.
type Repository struct {
	store docstore.Store
	now   func() time.Time
}

// NewRepository constructs an audit repository.
func NewRepository(store docstore.Store) *Repository {
	if store == nil {
		return nil
	}
	return &Repository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.store == nil {
		return errors.New("audit repo: nil store")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return r.store.Commit(ctx, []docstore.Op{docstore.Set(Collection, entry.ID, entry)})
}

// ListByStation returns the entries of a station, oldest first.
func (r *Repository) ListByStation(ctx context.Context, stationID string) ([]Entry, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("audit repo: nil store")
	}
	docs, err := r.store.FindEqual(ctx, Collection, "station_id", stationID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		var entry Entry
		if err := doc.Decode(&entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
