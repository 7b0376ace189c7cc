// Package executor drives test units through the systems that do the real
// work: an agent CLI for browser tasks, or a plain HTTP fetch for API checks.
//
// A TaskExecutor opens one Session per unit. The runner executes the session
// once and always closes it, whatever the outcome.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harrison/suitepilot/internal/models"
)

// TaskExecutor acquires the per-unit resources needed to run a task.
type TaskExecutor interface {
	Open(ctx context.Context, unit models.Unit) (Session, error)
}

// Session is one unit's exclusive handle on an executor.
// Execute is called at most once; Close is called exactly once.
type Session interface {
	// Execute runs the task and returns its raw output, which the caller
	// decodes and validates against the unit's output schema.
	Execute(ctx context.Context) ([]byte, error)

	// Close releases the session's resources.
	Close() error
}

// Artifacter is implemented by sessions that persist the raw executor
// output for later inspection.
type Artifacter interface {
	Artifact() string
}

// Func adapts a plain function into a TaskExecutor.
// Each Open returns a session that calls fn with the unit.
type Func func(ctx context.Context, unit models.Unit) ([]byte, error)

// Open implements TaskExecutor.
func (f Func) Open(_ context.Context, unit models.Unit) (Session, error) {
	return &funcSession{fn: f, unit: unit}, nil
}

type funcSession struct {
	fn   Func
	unit models.Unit
}

func (s *funcSession) Execute(ctx context.Context) ([]byte, error) {
	return s.fn(ctx, s.unit)
}

func (s *funcSession) Close() error { return nil }

// Mux routes units to executors by their task's executor key.
type Mux struct {
	mu     sync.RWMutex
	routes map[string]TaskExecutor
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{routes: make(map[string]TaskExecutor)}
}

// Handle registers exec for the given executor key, replacing any previous one.
func (m *Mux) Handle(key string, exec TaskExecutor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[key] = exec
}

// Keys returns the registered executor keys in sorted order.
func (m *Mux) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.routes))
	for k := range m.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Open implements TaskExecutor.
func (m *Mux) Open(ctx context.Context, unit models.Unit) (Session, error) {
	key := unit.Task().Executor

	m.mu.RLock()
	exec, ok := m.routes[key]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no executor registered for %q", key)
	}
	return exec.Open(ctx, unit)
}
