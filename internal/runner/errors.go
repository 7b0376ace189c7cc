package runner

import (
	"fmt"
	"strings"
	"time"
)

// Phase identifies the step of a unit's lifecycle where an error occurred.
type Phase int

const (
	// PhaseConstruct covers building the fresh unit instance.
	PhaseConstruct Phase = iota
	// PhaseOpen covers acquiring the executor session.
	PhaseOpen
	// PhaseExecute covers the executor call itself.
	PhaseExecute
	// PhaseValidate covers schema validation and the unit's predicate.
	PhaseValidate
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseConstruct:
		return "construct"
	case PhaseOpen:
		return "open"
	case PhaseExecute:
		return "execute"
	case PhaseValidate:
		return "validate"
	default:
		return "unknown"
	}
}

// UnitError attaches the failing unit and lifecycle phase to an error.
type UnitError struct {
	Unit  string
	Phase Phase
	Err   error
}

// NewUnitError creates a UnitError.
func NewUnitError(unit string, phase Phase, err error) *UnitError {
	return &UnitError{Unit: unit, Phase: phase, Err: err}
}

// Error implements the error interface for UnitError.
// The unit name is left out because every outcome already carries it.
func (e *UnitError) Error() string {
	if e.Phase == PhaseValidate || e.Phase == PhaseExecute {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a unit that exceeded its time budget.
type TimeoutError struct {
	Unit      string
	Timeout   time.Duration
	Abandoned bool // Executor ignored cancellation and was left running
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("timed out after %s", e.Timeout))
	if e.Abandoned {
		sb.WriteString(" (executor did not stop, abandoned)")
	}
	return sb.String()
}

// PanicError wraps a panic recovered from a unit or its executor.
type PanicError struct {
	Value interface{}
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
