package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// MaxInValues is the largest value list FindIn accepts in one call.
const MaxInValues = 10

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrTooManyValues is returned when FindIn receives more than MaxInValues values.
	ErrTooManyValues = errors.New("docstore: too many values for in query")
	// ErrInvalidOp is returned for malformed batch operations.
	ErrInvalidOp = errors.New("docstore: invalid operation")
)

// Doc is a stored document.
type Doc struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Doc) Decode(v any) error {
	if len(d.Data) == 0 {
		return fmt.Errorf("docstore: empty document %s/%s", d.Collection, d.ID)
	}
	return json.Unmarshal(d.Data, v)
}

// OpKind names a batch write.
type OpKind string

const (
	// OpSet replaces the whole document, creating it when missing.
	OpSet OpKind = "set"
	// OpMerge merges top-level fields into the document, creating it when missing.
	OpMerge OpKind = "merge"
	// OpUpdate merges top-level fields into an existing document; missing documents fail the batch.
	OpUpdate OpKind = "update"
	// OpDelete removes the document; missing documents are ignored.
	OpDelete OpKind = "delete"
)

// Op is one staged write of an atomic batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       any
}

// Set stages a full document write.
func Set(collection, id string, data any) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Data: data}
}

// Merge stages a set-with-merge write.
func Merge(collection, id string, data any) Op {
	return Op{Kind: OpMerge, Collection: collection, ID: id, Data: data}
}

// Update stages a partial update of an existing document.
func Update(collection, id string, fields map[string]any) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Data: fields}
}

// Delete stages a document removal.
func Delete(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// OpError reports which staged op failed a batch.
type OpError struct {
	Kind       OpKind
	Collection string
	ID         string
	Err        error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("docstore: %s %s/%s: %v", e.Kind, e.Collection, e.ID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// MissingTarget wraps ErrNotFound for an update whose document does not exist.
func (o Op) MissingTarget() error {
	return &OpError{Kind: o.Kind, Collection: o.Collection, ID: o.ID, Err: ErrNotFound}
}

// FailedOp returns the op error inside err, if any.
func FailedOp(err error) (*OpError, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

// Validate checks the op shape.
func (o Op) Validate() error {
	if o.Collection == "" || o.ID == "" {
		return fmt.Errorf("%w: empty collection or id", ErrInvalidOp)
	}
	switch o.Kind {
	case OpSet, OpMerge, OpUpdate:
		if o.Data == nil {
			return fmt.Errorf("%w: %s %s/%s without data", ErrInvalidOp, o.Kind, o.Collection, o.ID)
		}
	case OpDelete:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOp, o.Kind)
	}
	return nil
}

// Body encodes the op payload as a JSON object.
func (o Op) Body() (json.RawMessage, error) {
	payload, err := json.Marshal(o.Data)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: %s/%s data is not an object", ErrInvalidOp, o.Collection, o.ID)
	}
	return payload, nil
}

// Tx is the view of the store inside RunTransaction.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, data any) error
}

// Store is the document database contract used by the registry.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	List(ctx context.Context, collection string) ([]Doc, error)
	FindEqual(ctx context.Context, collection, field string, value any) ([]Doc, error)
	FindIn(ctx context.Context, collection, field string, values []any) ([]Doc, error)
	Commit(ctx context.Context, ops []Op) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// FindInChunks runs FindIn over values in chunks of MaxInValues.
func FindInChunks(ctx context.Context, store Store, collection, field string, values []any) ([]Doc, error) {
	var out []Doc
	for start := 0; start < len(values); start += MaxInValues {
		end := start + MaxInValues
		if end > len(values) {
			end = len(values)
		}
		docs, err := store.FindIn(ctx, collection, field, values[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

// EqualJSON reports whether a document field equals value under JSON encoding.
func EqualJSON(field json.RawMessage, value any) bool {
	want, err := json.Marshal(value)
	if err != nil {
		return false
	}
	var a, b any
	if err := json.Unmarshal(field, &a); err != nil {
		return false
	}
	if err := json.Unmarshal(want, &b); err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
