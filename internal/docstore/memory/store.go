package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"fuel-registry/internal/docstore"
)

// Store is an in-memory document store.
// Batches are applied under one lock; transactions are serialized store-wide.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data map[string]map[string]json.RawMessage
}

var _ docstore.Store = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[string]json.RawMessage)}
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Doc{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(collection, id)
}

func (s *Store) getLocked(collection, id string) (docstore.Doc, error) {
	body, ok := s.data[collection][id]
	if !ok {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	return docstore.Doc{Collection: collection, ID: id, Data: cloneRaw(body)}, nil
}

// List returns every document of a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Doc, error) {
	return s.scan(ctx, collection, func(map[string]json.RawMessage) bool { return true })
}

// FindEqual returns documents whose field equals value.
func (s *Store) FindEqual(ctx context.Context, collection, field string, value any) ([]docstore.Doc, error) {
	return s.scan(ctx, collection, func(fields map[string]json.RawMessage) bool {
		raw, ok := fields[field]
		return ok && docstore.EqualJSON(raw, value)
	})
}

// FindIn returns documents whose field equals one of values.
func (s *Store) FindIn(ctx context.Context, collection, field string, values []any) ([]docstore.Doc, error) {
	if len(values) > docstore.MaxInValues {
		return nil, docstore.ErrTooManyValues
	}
	if len(values) == 0 {
		return nil, nil
	}
	return s.scan(ctx, collection, func(fields map[string]json.RawMessage) bool {
		raw, ok := fields[field]
		if !ok {
			return false
		}
		for _, value := range values {
			if docstore.EqualJSON(raw, value) {
				return true
			}
		}
		return false
	})
}

func (s *Store) scan(ctx context.Context, collection string, match func(map[string]json.RawMessage) bool) ([]docstore.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Doc
	for id, body := range s.data[collection] {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("memory store: decode %s/%s: %w", collection, id, err)
		}
		if match(fields) {
			out = append(out, docstore.Doc{Collection: collection, ID: id, Data: cloneRaw(body)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Commit applies all ops or none.
func (s *Store) Commit(ctx context.Context, ops []docstore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bodies := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
		if op.Kind == docstore.OpDelete {
			continue
		}
		body, err := op.Body()
		if err != nil {
			return err
		}
		bodies[i] = body
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage on a copy of the touched documents so a failing op leaves the store untouched.
	staged := make(map[string]map[string]json.RawMessage)
	deleted := make(map[string]map[string]bool)
	current := func(collection, id string) (json.RawMessage, bool) {
		if deleted[collection][id] {
			return nil, false
		}
		if body, ok := staged[collection][id]; ok {
			return body, true
		}
		body, ok := s.data[collection][id]
		return body, ok
	}
	put := func(collection, id string, body json.RawMessage) {
		if staged[collection] == nil {
			staged[collection] = make(map[string]json.RawMessage)
		}
		staged[collection][id] = body
		if deleted[collection] != nil {
			delete(deleted[collection], id)
		}
	}

	for i, op := range ops {
		switch op.Kind {
		case docstore.OpSet:
			put(op.Collection, op.ID, bodies[i])
		case docstore.OpMerge, docstore.OpUpdate:
			existing, ok := current(op.Collection, op.ID)
			if !ok {
				if op.Kind == docstore.OpUpdate {
					return op.MissingTarget()
				}
				put(op.Collection, op.ID, bodies[i])
				continue
			}
			merged, err := mergeFields(existing, bodies[i])
			if err != nil {
				return err
			}
			put(op.Collection, op.ID, merged)
		case docstore.OpDelete:
			if deleted[op.Collection] == nil {
				deleted[op.Collection] = make(map[string]bool)
			}
			deleted[op.Collection][op.ID] = true
			if staged[op.Collection] != nil {
				delete(staged[op.Collection], op.ID)
			}
		}
	}

	for collection, ids := range deleted {
		for id := range ids {
			delete(s.data[collection], id)
		}
	}
	for collection, docs := range staged {
		if s.data[collection] == nil {
			s.data[collection] = make(map[string]json.RawMessage)
		}
		for id, body := range docs {
			s.data[collection][id] = body
		}
	}
	return nil
}

// RunTransaction runs fn with exclusive access to transactional reads and writes.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	if fn == nil {
		return fmt.Errorf("memory store: nil transaction func")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Commit(ctx, tx.ops)
}

type memTx struct {
	store *Store
	ops   []docstore.Op
}

func (t *memTx) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		if op.Collection != collection || op.ID != id {
			continue
		}
		body, err := op.Body()
		if err != nil {
			return docstore.Doc{}, err
		}
		return docstore.Doc{Collection: collection, ID: id, Data: body}, nil
	}
	return t.store.Get(ctx, collection, id)
}

func (t *memTx) Set(_ context.Context, collection, id string, data any) error {
	op := docstore.Set(collection, id, data)
	if err := op.Validate(); err != nil {
		return err
	}
	t.ops = append(t.ops, op)
	return nil
}

func mergeFields(existing, patch json.RawMessage) (json.RawMessage, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, err
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, err
	}
	if base == nil {
		base = make(map[string]json.RawMessage, len(overlay))
	}
	for key, value := range overlay {
		base[key] = value
	}
	return json.Marshal(base)
}

func cloneRaw(body json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(body))
	copy(out, body)
	return out
}
