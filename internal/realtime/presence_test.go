package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsechat/pulse/internal/realtime"
)

type presenceWrite struct {
	UserID   string
	Online   bool
	LastSeen *time.Time
}

// fakeStore implements realtime.PresenceStore with an in-memory friend graph
// and a record of every presence write. Errors can be injected to exercise the
// degraded paths.
type fakeStore struct {
	mu         sync.Mutex
	friends    map[string][]string
	writes     []presenceWrite
	friendsErr error
	writeErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{friends: make(map[string][]string)}
}

func (s *fakeStore) SetPresence(_ context.Context, userID string, online bool, lastSeen *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, presenceWrite{UserID: userID, Online: online, LastSeen: lastSeen})
	return nil
}

func (s *fakeStore) FriendIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.friendsErr != nil {
		return nil, s.friendsErr
	}
	return s.friends[userID], nil
}

func (s *fakeStore) allWrites() []presenceWrite {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]presenceWrite(nil), s.writes...)
}

// newTestCore assembles a registry, router, and coordinator over the fakes.
func newTestCore(store *fakeStore) (*realtime.Coordinator, *realtime.Registry, *recordingSink) {
	sink := newRecordingSink()
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(sink)
	coordinator := realtime.NewCoordinator(registry, router, store, sink, time.Second)
	return coordinator, registry, sink
}

// presenceUpdatesTo filters the deliveries a connection received down to
// presence:update events.
func presenceUpdatesTo(sink *recordingSink, connID string) []realtime.PresenceUpdate {
	var updates []realtime.PresenceUpdate
	for _, d := range sink.to(connID) {
		if d.Event == realtime.EventPresenceUpdate {
			updates = append(updates, d.Payload.(realtime.PresenceUpdate))
		}
	}
	return updates
}

// snapshotTo returns the online-friends snapshot a connection received, if any.
func snapshotTo(sink *recordingSink, connID string) ([]string, bool) {
	for _, d := range sink.to(connID) {
		if d.Event == realtime.EventOnlineFriends {
			return d.Payload.([]string), true
		}
	}
	return nil, false
}

// TestConnectNotifiesOnlineFriendsOnly covers the connect protocol: with
// friends B (online) and C (offline), A's connect delivers exactly one
// presence update to B, none anywhere for C, and A receives a snapshot
// containing only B.
func TestConnectNotifiesOnlineFriendsOnly(t *testing.T) {
	store := newFakeStore()
	store.friends["A"] = []string{"B", "C"}
	coordinator, _, sink := newTestCore(store)

	ctx := context.Background()
	coordinator.Connected(ctx, "B", "conn-b")
	coordinator.Connected(ctx, "A", "conn-a")

	updates := presenceUpdatesTo(sink, "conn-b")
	if len(updates) != 1 {
		t.Fatalf("B expected exactly 1 presence update, got %d", len(updates))
	}
	if updates[0].UserID != "A" || !updates[0].Online || updates[0].LastSeen != nil {
		t.Errorf("unexpected presence update for B: %+v", updates[0])
	}

	snapshot, ok := snapshotTo(sink, "conn-a")
	if !ok {
		t.Fatal("A never received the online-friends snapshot")
	}
	if len(snapshot) != 1 || snapshot[0] != "B" {
		t.Errorf("expected snapshot [B], got %v", snapshot)
	}
}

// TestConnectPersistsOnlineOnFirstConnectionOnly verifies the durable write
// happens on the first connection and is skipped for additional devices.
func TestConnectPersistsOnlineOnFirstConnectionOnly(t *testing.T) {
	store := newFakeStore()
	coordinator, _, _ := newTestCore(store)

	ctx := context.Background()
	coordinator.Connected(ctx, "A", "conn-1")
	coordinator.Connected(ctx, "A", "conn-2")

	writes := store.allWrites()
	if len(writes) != 1 {
		t.Fatalf("expected 1 presence write, got %d", len(writes))
	}
	if !writes[0].Online || writes[0].LastSeen != nil {
		t.Errorf("expected online write with nil lastSeen, got %+v", writes[0])
	}
}

// TestMultiDeviceDisconnect verifies that with two simultaneous connections,
// only the second disconnect takes the user offline: one presence update with
// a last-seen timestamp per friend, and one offline write.
func TestMultiDeviceDisconnect(t *testing.T) {
	store := newFakeStore()
	store.friends["A"] = []string{"B"}
	coordinator, registry, sink := newTestCore(store)

	ctx := context.Background()
	coordinator.Connected(ctx, "B", "conn-b")
	coordinator.Connected(ctx, "A", "conn-a1")
	coordinator.Connected(ctx, "A", "conn-a2")

	before := len(presenceUpdatesTo(sink, "conn-b"))

	coordinator.Disconnected(ctx, "A", "conn-a1")
	if !registry.IsOnline("A") {
		t.Fatal("A should stay online while a connection remains")
	}
	if got := len(presenceUpdatesTo(sink, "conn-b")); got != before {
		t.Errorf("no presence update expected while A stays online, got %d new", got-before)
	}

	coordinator.Disconnected(ctx, "A", "conn-a2")
	if registry.IsOnline("A") {
		t.Fatal("A should be offline after the last disconnect")
	}

	updates := presenceUpdatesTo(sink, "conn-b")
	if len(updates) != before+1 {
		t.Fatalf("B expected exactly 1 offline update, got %d", len(updates)-before)
	}
	offline := updates[len(updates)-1]
	if offline.UserID != "A" || offline.Online || offline.LastSeen == nil {
		t.Errorf("unexpected offline update: %+v", offline)
	}

	writes := store.allWrites()
	last := writes[len(writes)-1]
	if last.Online || last.LastSeen == nil {
		t.Errorf("expected offline write with lastSeen, got %+v", last)
	}
}

// TestAnonymousConnectionIsRelayOnly verifies an unidentified connection never
// appears in the registry and triggers no presence traffic, while room
// join/leave and broadcasts still work for it.
func TestAnonymousConnectionIsRelayOnly(t *testing.T) {
	store := newFakeStore()
	coordinator, registry, sink := newTestCore(store)

	ctx := context.Background()
	coordinator.Connected(ctx, "", "conn-anon")

	if registry.OnlineCount() != 0 {
		t.Error("anonymous connection must not be registered")
	}
	if len(sink.deliveries) != 0 {
		t.Errorf("anonymous connect must not deliver events, got %d", len(sink.deliveries))
	}

	coordinator.JoinRoom("conn-anon", "g1")
	coordinator.Broadcast(realtime.ChatRoom("g1"), "newMessage", "hi")
	if got := len(sink.to("conn-anon")); got != 1 {
		t.Errorf("anonymous connection expected 1 room delivery, got %d", got)
	}

	coordinator.Disconnected(ctx, "", "conn-anon")
	if len(store.allWrites()) != 0 {
		t.Error("anonymous lifecycle must not touch the store")
	}
}

// TestExplicitRoomJoinLeave verifies joinRoom/leaveRoom map to prefixed room
// keys with no presence side effects, and that clients cannot address
// personal rooms through them.
func TestExplicitRoomJoinLeave(t *testing.T) {
	store := newFakeStore()
	coordinator, _, sink := newTestCore(store)

	coordinator.JoinRoom("conn-a", "g1")
	coordinator.Broadcast("room:g1", "newMessage", "one")
	if got := len(sink.to("conn-a")); got != 1 {
		t.Fatalf("expected 1 delivery after join, got %d", got)
	}

	coordinator.LeaveRoom("conn-a", "g1")
	coordinator.Broadcast("room:g1", "newMessage", "two")
	if got := len(sink.to("conn-a")); got != 1 {
		t.Errorf("expected no delivery after leave, got %d", got)
	}

	// A client sending a personal-room key only reaches the prefixed variant.
	coordinator.JoinRoom("conn-a", "personal:B")
	coordinator.Broadcast(realtime.PersonalRoom("B"), "presence:update", "spoof")
	if got := len(sink.to("conn-a")); got != 1 {
		t.Errorf("client must not be able to join a personal room, got %d deliveries", got)
	}
}

// TestStorageFailureDegradesGracefully verifies that friend-list or persist
// failures skip the fan-out but never prevent the connection lifecycle from
// completing.
func TestStorageFailureDegradesGracefully(t *testing.T) {
	store := newFakeStore()
	store.friendsErr = errors.New("storage unreachable")
	store.writeErr = errors.New("storage unreachable")
	coordinator, registry, sink := newTestCore(store)

	ctx := context.Background()
	coordinator.Connected(ctx, "A", "conn-a")

	if !registry.IsOnline("A") {
		t.Error("registry must be updated even when storage fails")
	}
	if len(sink.deliveries) != 0 {
		t.Errorf("fan-out should be skipped on storage failure, got %d deliveries", len(sink.deliveries))
	}

	coordinator.Disconnected(ctx, "A", "conn-a")
	if registry.IsOnline("A") {
		t.Error("disconnect must complete despite storage failure")
	}
}

// TestDeliverToUser verifies legacy single-socket targeting hits one live
// connection and reports absence for offline users.
func TestDeliverToUser(t *testing.T) {
	store := newFakeStore()
	coordinator, _, sink := newTestCore(store)

	if coordinator.DeliverToUser("A", "notify", "ping") {
		t.Error("expected delivery to fail for an offline user")
	}

	coordinator.Connected(context.Background(), "A", "conn-a")
	if !coordinator.DeliverToUser("A", "notify", "ping") {
		t.Error("expected delivery to succeed for an online user")
	}
	found := false
	for _, d := range sink.to("conn-a") {
		if d.Event == "notify" {
			found = true
		}
	}
	if !found {
		t.Error("notify event never reached A's connection")
	}
}
