package transport

import (
	"context"
	"sync"
)

// Registry tracks open long-lived connections so they can be closed on
// shutdown. It maps connection IDs to the cancel functions of their
// contexts; cancelling a connection's context makes its loops exit.
//
// All methods are safe for concurrent access.
type Registry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds a connection. It returns false, and cancels the connection
// immediately, once CancelAll has been called.
func (r *Registry) Register(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		cancel()
		return false
	}
	r.entries[id] = cancel
	return true
}

// Cancel cancels one connection. It returns false if the ID is unknown.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// Remove drops a connection without cancelling it. Called when the
// connection has ended on its own.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// CancelAll cancels every registered connection and rejects later
// registrations. It returns how many connections were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	return n
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
