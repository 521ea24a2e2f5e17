// Package store provides the durable collaborators for the presence core: a
// MongoDB-backed presence and friend-graph store, an optional Redis mirror
// that exposes liveness to sibling services, and a no-op store for running
// without a database.
package store

import (
	"context"
	"time"
)

// Noop satisfies the presence store contract without persisting anything.
// Used in development when no MongoDB deployment is configured; every user
// simply has no friends.
type Noop struct{}

// SetPresence discards the update.
func (Noop) SetPresence(_ context.Context, _ string, _ bool, _ *time.Time) error {
	return nil
}

// FriendIDs reports an empty friend list for every user.
func (Noop) FriendIDs(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}
