package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PresenceStore is the durable storage collaborator for presence state and the
// friend graph. Implementations must be safe for concurrent use.
type PresenceStore interface {
	// SetPresence persists the user's online flag and last-seen timestamp.
	// lastSeen is nil while the user is online.
	SetPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error
	// FriendIDs returns the ids of the user's friends, possibly empty.
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Coordinator orchestrates the connect/disconnect protocol: it keeps the
// registry and router in sync with connection lifecycle, persists presence
// transitions, and fans presence updates out to the affected user's friends
// only. Storage failures degrade the fan-out; they never abort a connection.
type Coordinator struct {
	registry *Registry
	router   *Router
	store    PresenceStore
	sink     Deliverer
	timeout  time.Duration
}

// NewCoordinator wires the presence protocol together. timeout bounds every
// storage call so a slow collaborator cannot stall a connection's setup or
// teardown indefinitely.
func NewCoordinator(registry *Registry, router *Router, store PresenceStore, sink Deliverer, timeout time.Duration) *Coordinator {
	return &Coordinator{
		registry: registry,
		router:   router,
		store:    store,
		sink:     sink,
		timeout:  timeout,
	}
}

// Connected runs the connect-time protocol for an identified connection:
// register, join the personal room, persist the online transition if this is
// the user's first connection, notify friends, and deliver the online-friends
// snapshot to the new connection. Anonymous connections (empty userID) get
// none of this; they stay usable for plain room relay.
func (c *Coordinator) Connected(ctx context.Context, userID, connID string) {
	if userID == "" {
		return
	}

	becameOnline := c.registry.Register(userID, connID)
	c.router.Join(connID, PersonalRoom(userID))

	if becameOnline {
		c.persist(ctx, userID, true, nil)
	}

	friends, err := c.fetchFriends(ctx, userID)
	if err != nil {
		zap.S().Errorw("skipping presence fan-out",
			"user", userID,
			"error", err,
		)
		return
	}

	update := PresenceUpdate{UserID: userID, Online: true}
	for _, friendID := range friends {
		c.router.Broadcast(PersonalRoom(friendID), EventPresenceUpdate, update)
	}

	online := make([]string, 0, len(friends))
	for _, friendID := range friends {
		if c.registry.IsOnline(friendID) {
			online = append(online, friendID)
		}
	}
	c.sink.Deliver(connID, EventOnlineFriends, online)
}

// Disconnected runs the disconnect-time protocol: leave every room, unregister,
// and, when the user's last connection is gone, persist the offline transition
// and notify friends with the last-seen timestamp. When other connections
// remain the user stays online and no presence event is emitted.
func (c *Coordinator) Disconnected(ctx context.Context, userID, connID string) {
	c.router.LeaveAll(connID)

	if userID == "" {
		return
	}

	becameOffline := c.registry.Unregister(userID, connID)
	if !becameOffline {
		return
	}

	lastSeen := time.Now().UTC()
	c.persist(ctx, userID, false, &lastSeen)

	friends, err := c.fetchFriends(ctx, userID)
	if err != nil {
		zap.S().Errorw("skipping offline presence fan-out",
			"user", userID,
			"error", err,
		)
		return
	}

	update := PresenceUpdate{UserID: userID, Online: false, LastSeen: &lastSeen}
	for _, friendID := range friends {
		c.router.Broadcast(PersonalRoom(friendID), EventPresenceUpdate, update)
	}
}

// JoinRoom handles an explicit client request to join an ad-hoc chat or group
// channel. The room prefix is applied here, so clients can never address a
// personal room. No presence side effects.
func (c *Coordinator) JoinRoom(connID, chatOrGroupID string) {
	if chatOrGroupID == "" {
		return
	}
	c.router.Join(connID, ChatRoom(chatOrGroupID))
}

// LeaveRoom handles an explicit client request to leave a channel.
func (c *Coordinator) LeaveRoom(connID, chatOrGroupID string) {
	if chatOrGroupID == "" {
		return
	}
	c.router.Leave(connID, ChatRoom(chatOrGroupID))
}

// Broadcast exposes room fan-out to the transport layer's emit endpoint.
func (c *Coordinator) Broadcast(roomKey, event string, payload any) {
	c.router.Broadcast(roomKey, event, payload)
}

// DeliverToUser sends an event to one arbitrary live connection of a user and
// reports whether a connection was available. Kept for the legacy notification
// path that targets a single socket.
func (c *Coordinator) DeliverToUser(userID, event string, payload any) bool {
	connID, ok := c.registry.AnyConnectionFor(userID)
	if !ok {
		return false
	}
	return c.sink.Deliver(connID, event, payload)
}

func (c *Coordinator) persist(ctx context.Context, userID string, online bool, lastSeen *time.Time) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.SetPresence(ctx, userID, online, lastSeen); err != nil {
		zap.S().Errorw("failed to persist presence state",
			"user", userID,
			"online", online,
			"error", err,
		)
	}
}

func (c *Coordinator) fetchFriends(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.store.FriendIDs(ctx, userID)
}
