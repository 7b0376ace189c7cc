package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Executor routing keys understood by the built-in task executors.
const (
	ExecutorAgent = "agent" // External agent CLI (browser automation)
	ExecutorHTTP  = "http"  // Direct HTTP fetch of a JSON document
)

// Task is the opaque descriptor handed to a task executor.
// The orchestration core never interprets Instructions or Params.
type Task struct {
	Executor     string            // Executor routing key (agent, http, ...)
	Instructions string            // Free-form instructions for the executor
	Params       map[string]string // Executor-specific parameters (url, method, header.*)
	Timeout      time.Duration     // Per-unit timeout override (0 = runner default)
}

// Validate checks if the task has the fields every executor needs
func (t Task) Validate() error {
	if t.Executor == "" {
		return errors.New("task executor is required")
	}
	if t.Instructions == "" && len(t.Params) == 0 {
		return errors.New("task needs instructions or params")
	}
	if t.Timeout < 0 {
		return errors.New("task timeout must be >= 0")
	}
	return nil
}

// Param returns the named parameter or def when it is unset.
func (t Task) Param(key, def string) string {
	if v, ok := t.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// Unit is the capability contract every test unit satisfies.
//
// A Unit is constructed fresh for each execution and is never shared
// between concurrently running units.
type Unit interface {
	// Name is the stable identity used as the report key.
	Name() string

	// Task describes the workload for the task executor.
	Task() Task

	// OutputSchema is the JSON Schema the executor result must conform to.
	// A nil schema accepts any JSON value.
	OutputSchema() json.RawMessage

	// Validate checks a result that already matches OutputSchema.
	// It returns nil on pass or an error explaining the rejection.
	Validate(result any) error
}
