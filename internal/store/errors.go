package store

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when a store operation runs before
// Open has completed the one-time open/schema-provisioning step.
var ErrNotInitialized = errors.New("store not initialized")

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("record not found")

// StoreError wraps an underlying storage I/O failure with the
// collection and operation that triggered it.
type StoreError struct {
	Collection string
	Op         string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Collection, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrap builds a StoreError, passing nil through untouched.
func wrap(collection, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Collection: collection, Op: op, Err: err}
}
