package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrConflict indicates that the underlying storage rejected a write
	// because another writer got there first.
	ErrConflict = errors.New("concurrent write conflict")
)

// ValidationError reports malformed input, raised before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps an underlying persistence failure so callers can
// distinguish it from domain-level outcomes without inspecting the cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }
