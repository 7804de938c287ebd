// Package presence tracks who is connected to this process right now.
// Nothing here is persisted; a restart starts from an empty registry.
package presence

import (
	"sort"
	"sync"

	"support-chat/internal/models"
)

// Registry is the process-local map of live connections.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]models.PresenceEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]models.PresenceEntry)}
}

// Register records a connection, replacing any previous entry for the same
// connection id.
func (r *Registry) Register(entry models.PresenceEntry) {
	entry.Online = true
	r.mu.Lock()
	r.entries[entry.ConnID] = entry
	r.mu.Unlock()
}

// Unregister removes a connection and returns the entry it held.
func (r *Registry) Unregister(connID string) (models.PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[connID]
	if ok {
		delete(r.entries, connID)
		entry.Online = false
	}
	return entry, ok
}

// Get returns the entry for a connection.
func (r *Registry) Get(connID string) (models.PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[connID]
	return entry, ok
}

// ListOnline returns a copy of all entries ordered by join time.
func (r *Registry) ListOnline() []models.PresenceEntry {
	r.mu.RLock()
	out := make([]models.PresenceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnID < out[j].ConnID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Count returns the number of live connections with the given role.
func (r *Registry) Count(role models.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Role == role {
			n++
		}
	}
	return n
}

// IsUserOnline reports whether any connection belongs to userID.
func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}
