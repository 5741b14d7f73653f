// Package extension implements the process-wide, named-extension lookup
// used by every pluggable concern in joyrpc (codecs, registries,
// transports, load balancers, filters, health doctors). Extensions are
// loaded once per name and resolved with a stable priority order, the
// same "named capability" pattern the core's dynamic-dispatch points use
// (spec §9, "tagged-interface pattern").
package extension

import (
	"fmt"
	"sort"
	"sync"
)

// Named is implemented by every extension point. Name must be stable and
// unique within one Registry.
type Named interface {
	Name() string
}

// Registry is a process-scoped, concurrency-safe collection of named
// extensions of one capability (e.g. "codec", "loadbalance"). It is
// constructed explicitly and passed by reference — there is no
// package-level global state, so tests can run several independent
// registries in parallel.
type Registry[T Named] struct {
	mu    sync.RWMutex
	byKey map[string]entry[T]
}

type entry[T Named] struct {
	ext      T
	priority int
}

// NewRegistry creates an empty Registry.
func NewRegistry[T Named]() *Registry[T] {
	return &Registry[T]{byKey: make(map[string]entry[T])}
}

// Register adds ext under its own Name(), with the given priority (lower
// values are preferred by Ordered). Registering the same name twice
// replaces the previous extension, matching the common
// "last registration wins" convention used for config overrides.
func (r *Registry[T]) Register(ext T, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[ext.Name()] = entry[T]{ext: ext, priority: priority}
}

// Get looks up an extension by name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[name]
	return e.ext, ok
}

// MustGet panics if name is not registered; intended for process
// bootstrap, not steady-state request paths.
func (r *Registry[T]) MustGet(name string) T {
	ext, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("extension: no %q registered", name))
	}
	return ext
}

// Ordered returns every registered extension sorted ascending by priority,
// ties broken by name for deterministic iteration.
func (r *Registry[T]) Ordered() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ei, ej := r.byKey[names[i]], r.byKey[names[j]]
		if ei.priority != ej.priority {
			return ei.priority < ej.priority
		}
		return names[i] < names[j]
	})

	out := make([]T, len(names))
	for i, name := range names {
		out[i] = r.byKey[name].ext
	}
	return out
}

// Names returns every registered extension name, unordered.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		out = append(out, name)
	}
	return out
}
