package core

import (
	"sort"
	"sync"

	"github.com/teaminfosharing/tis-server/internal/store"
)

// Presence is a registry entry for a connected user. It is a weak snapshot of
// the user taken at registration time; profile fields here must never be
// treated as the source of truth.
type Presence struct {
	UserID      int64
	Username    string
	DisplayName string
	Role        store.Role
	ConnID      string
}

// PresenceRegistry is the process-wide table of currently-connected users,
// keyed by connection id. It holds no persistent state and is rebuilt from
// scratch on restart. The mutex makes it safe to touch from both the hub loop
// and HTTP handler goroutines; presence is read-after-write consistent only
// within a single process.
type PresenceRegistry struct {
	mu     sync.RWMutex
	byConn map[string]Presence
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{byConn: make(map[string]Presence)}
}

// Add inserts an entry unless the same user is already registered. Re-adding
// a known user is a no-op, which keeps reconnect races from producing
// duplicate presence rows. Returns true if the entry was inserted.
func (r *PresenceRegistry) Add(p Presence) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byConn {
		if existing.UserID == p.UserID {
			return false
		}
	}
	r.byConn[p.ConnID] = p
	return true
}

// Remove deletes the entry owning the connection, if any.
func (r *PresenceRegistry) Remove(connID string) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	return p, ok
}

// List returns a snapshot of current entries, optionally filtered, ordered by
// user id for stable output.
func (r *PresenceRegistry) List(pred func(Presence) bool) []Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Presence, 0, len(r.byConn))
	for _, p := range r.byConn {
		if pred == nil || pred(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// FindByConn looks up the entry bound to a connection id.
func (r *PresenceRegistry) FindByConn(connID string) (Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byConn[connID]
	return p, ok
}

// FindByUser looks up the entry for a user id.
func (r *PresenceRegistry) FindByUser(userID int64) (Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byConn {
		if p.UserID == userID {
			return p, true
		}
	}
	return Presence{}, false
}

// FindByRole returns all entries with the given role, ordered by user id.
func (r *PresenceRegistry) FindByRole(role store.Role) []Presence {
	return r.List(func(p Presence) bool { return p.Role == role })
}
