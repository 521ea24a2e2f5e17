package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Deliverer sends one event to one connection. Implementations are best-effort:
// a false return means the connection could not accept the event (gone, or its
// buffer is full). The router never treats a failed delivery as an error.
type Deliverer interface {
	Deliver(connID, event string, payload any) bool
}

// Router maintains room membership and fans events out to the current members
// of a room. It holds only connection ids, never connections themselves; the
// hub owns those. Rooms come into existence on first join and are dropped when
// their last member leaves.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	joined map[string]map[string]struct{}
	sink   Deliverer
}

// NewRouter creates a Router that delivers through sink.
func NewRouter(sink Deliverer) *Router {
	return &Router{
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
		sink:   sink,
	}
}

// Join adds the connection to the room's member set. Idempotent.
func (rt *Router) Join(connID, roomKey string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	members, ok := rt.rooms[roomKey]
	if !ok {
		members = make(map[string]struct{})
		rt.rooms[roomKey] = members
	}
	members[connID] = struct{}{}

	keys, ok := rt.joined[connID]
	if !ok {
		keys = make(map[string]struct{})
		rt.joined[connID] = keys
	}
	keys[roomKey] = struct{}{}
}

// Leave removes the connection from the room. Idempotent; the room entry is
// dropped once empty and lazily recreated on the next join.
func (rt *Router) Leave(connID, roomKey string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.removeMember(connID, roomKey)
	if keys, ok := rt.joined[connID]; ok {
		delete(keys, roomKey)
		if len(keys) == 0 {
			delete(rt.joined, connID)
		}
	}
}

// LeaveAll removes the connection from every room it belongs to. Called once
// at disconnect so no membership leaks past the connection's lifetime.
func (rt *Router) LeaveAll(connID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for roomKey := range rt.joined[connID] {
		rt.removeMember(connID, roomKey)
	}
	delete(rt.joined, connID)
}

func (rt *Router) removeMember(connID, roomKey string) {
	members, ok := rt.rooms[roomKey]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(rt.rooms, roomKey)
	}
}

// Broadcast delivers the event to every connection that is a member of the
// room at the moment of the call. Delivery to each member is best-effort: one
// failed member never aborts the rest and nothing is reported to the caller.
func (rt *Router) Broadcast(roomKey, event string, payload any) {
	for _, connID := range rt.members(roomKey) {
		if !rt.sink.Deliver(connID, event, payload) {
			zap.S().Debugw("dropped room event",
				"room", roomKey,
				"event", event,
				"connection", connID,
			)
		}
	}
}

// members returns a snapshot of the room's member set so delivery happens
// outside the lock.
func (rt *Router) members(roomKey string) []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	set, ok := rt.rooms[roomKey]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for connID := range set {
		ids = append(ids, connID)
	}
	return ids
}
