package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations.
var (
	// ErrStorage matches every *Error via errors.Is.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Error is raised for any SQL or mapping fault. It always carries either a
// reason, a cause, or both.
type Error struct {
	Reason string
	Cause  error
}

// NewError creates a storage error with a reason and no cause.
func NewError(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause as a storage error. Returns nil if cause is nil.
// An existing *Error is returned unchanged.
func Wrap(cause error) error {
	if cause == nil {
		return nil
	}
	var se *Error
	if errors.As(cause, &se) {
		return cause
	}
	return &Error{Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	case e.Reason != "":
		return e.Reason
	case e.Cause != nil:
		return "SQL error: " + e.Cause.Error()
	default:
		return ErrStorage.Error()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports ErrStorage as a match so callers need not know the concrete type.
func (e *Error) Is(target error) bool { return target == ErrStorage }
