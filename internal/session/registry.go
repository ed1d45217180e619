// Package session keeps live values between the calls of a multi-request
// session, keyed by session ID.
package session

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	lastSeen time.Time
}

// Registry maps session IDs to values and tracks when each was last used.
type Registry[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{
		entries: make(map[string]*entry[V]),
		now:     time.Now,
	}
}

// Store stores v under id, replacing any previous value.
func (r *Registry[V]) Store(id string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry[V]{value: v, lastSeen: r.now()}
}

// Get returns the value stored under id and marks it as used.
func (r *Registry[V]) Get(id string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		var zero V
		return zero, false
	}
	e.lastSeen = r.now()
	return e.value, true
}

// Touch marks id as used without returning it. It reports whether id is
// stored.
func (r *Registry[V]) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if ok {
		e.lastSeen = r.now()
	}
	return ok
}

// Remove deletes id and returns the value it held.
func (r *Registry[V]) Remove(id string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		var zero V
		return zero, false
	}
	delete(r.entries, id)
	return e.value, true
}

// Len returns the number of stored sessions.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes every session unused for longer than idle and returns the
// evicted values by ID. Values for which busy reports true are kept
// regardless of age; busy may be nil.
func (r *Registry[V]) Sweep(idle time.Duration, busy func(V) bool) map[string]V {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	evicted := make(map[string]V)
	for id, e := range r.entries {
		if !e.lastSeen.Before(cutoff) {
			continue
		}
		if busy != nil && busy(e.value) {
			continue
		}
		evicted[id] = e.value
		delete(r.entries, id)
	}
	return evicted
}

// Drain removes and returns every stored session.
func (r *Registry[V]) Drain() map[string]V {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]V, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.value
	}
	clear(r.entries)
	return out
}
