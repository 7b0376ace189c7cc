package models

import (
	"errors"
	"math"
	"time"
)

// Status is the terminal state of a unit.
type Status string

// Outcome status constants
const (
	StatusPassed Status = "passed" // Result matched schema and predicate
	StatusFailed Status = "failed" // Anything else
)

// FailureKind classifies why a unit failed.
type FailureKind string

// Failure kinds
const (
	KindExecution FailureKind = "execution" // Executor failed, timed out or panicked
	KindSchema    FailureKind = "schema"    // Result did not match the output schema
	KindAssertion FailureKind = "assertion" // Predicate rejected a well-typed result
	KindCancelled FailureKind = "cancelled" // Run was cancelled before the unit finished
)

// Outcome is the terminal record of one unit execution.
// Build it with Passed or Failed; it is not mutated afterwards.
type Outcome struct {
	Name     string      `json:"test_name"`
	Status   Status      `json:"status"`
	Kind     FailureKind `json:"failure_kind,omitempty"`
	Duration float64     `json:"duration"`
	Result   any         `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
	Source   string      `json:"source,omitempty"`
	Artifact string      `json:"artifact,omitempty"`
}

// Passed builds a passed outcome carrying the validated result.
func Passed(name string, result any, elapsed time.Duration) Outcome {
	return Outcome{
		Name:     name,
		Status:   StatusPassed,
		Duration: Seconds(elapsed),
		Result:   result,
	}
}

// Failed builds a failed outcome of the given kind.
func Failed(name string, kind FailureKind, message string, elapsed time.Duration) Outcome {
	return Outcome{
		Name:     name,
		Status:   StatusFailed,
		Kind:     kind,
		Duration: Seconds(elapsed),
		Error:    message,
	}
}

// FailedFromError builds a failed outcome, deriving the kind from err.
func FailedFromError(name string, err error, elapsed time.Duration) Outcome {
	return Failed(name, Classify(err), err.Error(), elapsed)
}

// IsPassed reports whether the outcome passed.
func (o Outcome) IsPassed() bool {
	return o.Status == StatusPassed
}

// WithSource returns a copy of o annotated with the definition source.
func (o Outcome) WithSource(source string) Outcome {
	o.Source = source
	return o
}

// WithArtifact returns a copy of o annotated with a captured artifact path.
func (o Outcome) WithArtifact(path string) Outcome {
	o.Artifact = path
	return o
}

// Classify maps an error to the failure kind it represents.
func Classify(err error) FailureKind {
	var se *SchemaError
	var ae *AssertionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return KindSchema
	case errors.As(err, &ae):
		return KindAssertion
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	default:
		return KindExecution
	}
}

// Seconds converts a duration to seconds rounded to two decimals.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
