// Package session tracks the chats that have talked to the bot during this
// process lifetime.
package session

import (
	"sort"
	"sync"
)

// Identity is a chat together with its last known username
type Identity struct {
	ChatID   int64
	Username string
}

// Registry is a concurrency-safe set of identities keyed by chat id.
// Entries are only added; the registry lives as long as the process.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]Identity
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]Identity)}
}

// Add records an identity and reports whether the chat was new. A known chat
// keeps its entry but picks up a changed non-empty username.
func (r *Registry) Add(id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id.ChatID]
	if ok {
		if id.Username != "" && id.Username != existing.Username {
			existing.Username = id.Username
			r.entries[id.ChatID] = existing
		}
		return false
	}
	r.entries[id.ChatID] = id
	return true
}

// Snapshot returns a copy of the registry ordered by chat id
func (r *Registry) Snapshot() []Identity {
	r.mu.RLock()
	out := make([]Identity, 0, len(r.entries))
	for _, id := range r.entries {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// Len returns the number of known chats
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
