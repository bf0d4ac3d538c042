// Package registry implements the process-global Active-Sweep Registry:
// the weakly-held set that enforces "at most one unrelated running sweep"
// (spec.md §4.7). It is grounded on the teacher's
// internal/serialmux.SerialMux subscriber bookkeeping — a map behind a
// single mutex, keyed by a stable id, with short critical sections.
package registry

import (
	"fmt"
	"sync"
)

// Handle is the narrow view of a sweep the registry needs. sweep.Base
// implements it; the registry package has no dependency on the sweep
// package, avoiding an import cycle.
type Handle interface {
	// ID is a stable identifier, unique for the lifetime of the process.
	ID() string
	// RelatedTo reports whether other is related to this handle: equal, an
	// ancestor, a descendant, or sharing an ancestor.
	RelatedTo(other Handle) bool
	// Kill abruptly terminates the sweep, per spec.md's start_force rule.
	Kill()
}

// ConcurrencyError reports that start() was blocked by an unrelated active
// sweep.
type ConcurrencyError struct {
	Blocking string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("another sweep is active: %s", e.Blocking)
}

// Registry is the process-wide set of currently RUNNING (or
// RAMPING_TO_START) non-queued sweeps.
type Registry struct {
	mu      sync.Mutex
	members map[string]Handle
}

// New creates an empty registry. Production code normally uses Default();
// New exists so tests don't share state with other tests or packages.
func New() *Registry {
	return &Registry{members: make(map[string]Handle)}
}

var defaultRegistry = New()

// Default returns the process-wide registry singleton.
func Default() *Registry {
	return defaultRegistry
}

// Reset clears the registry. Exposed for tests per spec.md §9 ("Programs
// under test should expose a reset hook").
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]Handle)
}

// Start registers h if no unrelated member is currently active. It fails
// with a ConcurrencyError otherwise, leaving the registry unchanged.
func (r *Registry) Start(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.members {
		if !h.RelatedTo(m) {
			return &ConcurrencyError{Blocking: id}
		}
	}
	r.members[h.ID()] = h
	return nil
}

// StartForce kills every unrelated member before inserting h.
func (r *Registry) StartForce(h Handle) {
	r.mu.Lock()
	var toKill []Handle
	for id, m := range r.members {
		if !h.RelatedTo(m) {
			toKill = append(toKill, m)
			delete(r.members, id)
		}
	}
	r.members[h.ID()] = h
	r.mu.Unlock()

	for _, m := range toKill {
		m.Kill()
	}
}

// Remove removes h from the registry, called on any transition to a
// terminal state.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, h.ID())
}

// Members returns a snapshot of the currently registered handles, for
// admin/introspection routes.
func (r *Registry) Members() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}
