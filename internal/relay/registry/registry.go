// Package registry tracks which users currently have a live session.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
)

// Handle is one live transport session.
type Handle interface {
	// ID is the opaque session token persisted as the user's connection id.
	ID() string

	// Send delivers an event to the client. Implementations serialize writes
	// themselves; Send is never called under the registry lock.
	Send(ctx context.Context, ev domain.Event) error

	// Close tears the session down. It must be safe to call more than once.
	Close() error
}

// Registry maps a user id to that user's single live handle.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
}

func New() *Registry {
	return &Registry{conns: make(map[string]Handle)}
}

// Register installs h for userID and returns the handle it replaced, if any.
// The caller owns closing the superseded handle.
func (r *Registry) Register(userID string, h Handle) (superseded Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[userID]
	r.conns[userID] = h
	if prev == h {
		return nil
	}
	return prev
}

// Unregister removes userID only while h is still the registered handle. A
// late disconnect from a superseded session is a no-op, so it cannot erase a
// fresher connection. It reports whether an entry was removed.
func (r *Registry) Unregister(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.conns[userID]
	if !ok || cur != h {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[userID]
	return h, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the ids of every connected user, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
