// Package realtime implements the presence core of the chat service: the
// connection registry, the room router, and the presence coordinator that
// drives the connect/disconnect protocol between them.
package realtime

import "sync"

// Registry is the authoritative record of which transport connections are
// currently live for which user. A user may hold several connections at once
// (multiple tabs or devices); the user counts as online while at least one
// connection remains. All mutations happen under a single mutex so that
// concurrent connects and disconnects for the same user never observe an
// inconsistent state.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]map[string]struct{}),
	}
}

// Register records connID as a live connection for userID and reports whether
// this was the user's first live connection, i.e. the user just came online.
// Registering the same pair twice is a no-op and never signals a transition.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		r.users[userID] = map[string]struct{}{connID: {}}
		return true
	}
	conns[connID] = struct{}{}
	return false
}

// Unregister removes connID from userID's connection set and reports whether
// the user's last connection was removed, i.e. the user just went offline.
// The entry is deleted entirely when its set empties; unregistering a pair
// that was never registered is a no-op.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user currently has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userID]) > 0
}

// AnyConnectionFor returns one arbitrary live connection id for the user, used
// for legacy single-socket targeting. No ordering guarantee beyond "some live
// connection, if any".
func (r *Registry) AnyConnectionFor(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID := range r.users[userID] {
		return connID, true
	}
	return "", false
}

// OnlineCount returns the number of users with at least one live connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}
