// Package apperror holds the error kinds shared by the engine, persistence
// and HTTP layers.
package apperror

import (
	"errors"
	"fmt"
)

// ValidationError is returned synchronously before any generation starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a storage failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

var (
	// ErrPeerGone marks a protocol error: the client went away mid-stream.
	ErrPeerGone = errors.New("peer disconnected")
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks a failure of a remote the service depends on.
	ErrUpstream = errors.New("upstream unavailable")
)

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
