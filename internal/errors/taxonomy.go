package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound is returned when a habit or streak does not exist or does not
// belong to the requesting owner.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input. It is never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps a store failure that is safe to retry for idempotent
// operations (timeouts, lost connections, lock contention).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError for op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// ConsistencyError reports a data-integrity breach such as a child occurrence
// whose parent cannot be resolved.
type ConsistencyError struct {
	HabitID  string
	ParentID string
	Reason   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation on habit %s (parent %s): %s", e.HabitID, e.ParentID, e.Reason)
}

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConsistency reports whether err is or wraps a ConsistencyError.
func IsConsistency(err error) bool {
	var c *ConsistencyError
	return errors.As(err, &c)
}

// IsTransient reports whether err is retryable: an explicit TransientError,
// a context deadline, a bad driver connection or a network error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
