package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyNaturalKey is returned when a reference entity has no key to resolve by.
var ErrEmptyNaturalKey = errors.New("registry: empty natural key")

// StorageError wraps a store failure of an aggregate operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("registry storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError reports invalid submission fields keyed by json path.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "registry: invalid submission: " + strings.Join(parts, ", ")
}
