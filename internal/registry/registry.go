// Package registry maps test kinds to unit factories and discovers test
// definitions in a workspace.
//
// Units are never found by introspection. A definition file names a kind,
// and the kind must have been registered with a Factory beforehand. The
// built-in declarative kinds (agent, http) cover definitions that describe
// their task, result schema and assertions entirely in the file; compiled
// Go units are registered with Static.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harrison/suitepilot/internal/models"
)

// Built-in declarative kinds.
const (
	KindAgent = models.ExecutorAgent
	KindHTTP  = models.ExecutorHTTP
)

// Factory builds a fresh unit from its definition.
type Factory func(def Definition) (models.Unit, error)

// Registry maps kind names to factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Default returns a registry with the built-in declarative kinds registered.
func Default() *Registry {
	r := New()
	r.MustRegister(KindAgent, Declarative)
	r.MustRegister(KindHTTP, Declarative)
	return r
}

// Register adds a factory under kind.
// Registering the same kind twice is an error.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("kind is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for kind %q is nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// MustRegister is like Register but panics on error.
// Intended for package initialization.
func (r *Registry) MustRegister(kind string, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under kind.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Static adapts a compiled-in unit constructor into a Factory.
// The definition only selects the unit; its content is ignored.
func Static(ctor func() models.Unit) Factory {
	return func(Definition) (models.Unit, error) {
		u := ctor()
		if u == nil {
			return nil, fmt.Errorf("unit constructor returned nil")
		}
		return u, nil
	}
}
