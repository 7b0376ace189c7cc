package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled marks a unit that did not finish because the run was cancelled.
var ErrCancelled = errors.New("cancelled")

// SchemaError reports an executor result that does not match the output schema.
type SchemaError struct {
	Unit   string   // Unit name
	Issues []string // One entry per violation
	Err    error    // Underlying validation or decode error
}

// Error implements the error interface for SchemaError.
func (e *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema mismatch")
	if len(e.Issues) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Issues, "; "))
	} else if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// AssertionError reports a predicate that rejected a well-typed result.
type AssertionError struct {
	Failures []string
}

// NewAssertionError creates an AssertionError from one or more messages.
func NewAssertionError(msgs ...string) *AssertionError {
	return &AssertionError{Failures: msgs}
}

// Assertf creates an AssertionError from a format string.
func Assertf(format string, args ...interface{}) *AssertionError {
	return NewAssertionError(fmt.Sprintf(format, args...))
}

// Error implements the error interface for AssertionError.
func (e *AssertionError) Error() string {
	switch len(e.Failures) {
	case 0:
		return "assertion failed"
	case 1:
		return "assertion failed: " + e.Failures[0]
	default:
		return fmt.Sprintf("%d assertions failed: %s", len(e.Failures), strings.Join(e.Failures, "; "))
	}
}
