// Package registry names the pluggable backends of the reading
// pipeline. Recognizer, detector and synthesizer implementations
// register a factory from init(), so importing a backend package is
// what makes it selectable by name in configuration.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a backend from its string configuration.
type Factory[T any] func(config map[string]string) (T, error)

// Registry maps backend names to factories. Safe for concurrent use;
// registration normally happens during init and lookups at wiring
// time.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

func New[T any]() *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
	}
}

// Register makes a backend selectable under name, replacing any
// previous factory with that name.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds the named backend.
func (r *Registry[T]) Create(name string, config map[string]string) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		available := r.List()
		if len(available) == 0 {
			return zero, fmt.Errorf("no %q backend registered: no backend packages imported", name)
		}
		return zero, fmt.Errorf("no %q backend registered, have %s", name, strings.Join(available, ", "))
	}

	return factory(config)
}

// Has reports whether a backend is registered under name.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns the registered backend names, sorted.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
