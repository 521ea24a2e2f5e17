package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pulsechat/pulse/internal/realtime"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// Mirror layers a Redis copy of presence transitions over another store so
// sibling services can read liveness without touching the primary database.
// Mirroring is best-effort: Redis failures are logged and the primary store's
// result is returned unchanged.
type Mirror struct {
	next  realtime.PresenceStore
	redis *redis.Client
	ttl   time.Duration
}

// NewMirror wraps next with a Redis mirror. Keys expire after ttl so a crashed
// node cannot leave users marked online forever.
func NewMirror(next realtime.PresenceStore, client *redis.Client, ttl time.Duration) *Mirror {
	return &Mirror{
		next:  next,
		redis: client,
		ttl:   ttl,
	}
}

type mirroredPresence struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// SetPresence writes through to the primary store, then mirrors the transition
// into Redis: an online user gets a TTL'd presence key and membership in the
// online set, an offline user is removed from both.
func (m *Mirror) SetPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error {
	err := m.next.SetPresence(ctx, userID, online, lastSeen)

	key := presenceKeyPrefix + userID
	pipe := m.redis.Pipeline()
	if online {
		data, marshalErr := json.Marshal(mirroredPresence{UserID: userID, Online: true})
		if marshalErr == nil {
			pipe.Set(ctx, key, data, m.ttl)
			pipe.SAdd(ctx, onlineSetKey, userID)
			pipe.Expire(ctx, onlineSetKey, m.ttl*2)
		}
	} else {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, onlineSetKey, userID)
	}
	if _, mirrorErr := pipe.Exec(ctx); mirrorErr != nil {
		zap.S().Warnw("failed to mirror presence to redis",
			"user", userID,
			"online", online,
			"error", mirrorErr,
		)
	}

	return err
}

// FriendIDs delegates to the primary store; the friend graph is not mirrored.
func (m *Mirror) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	return m.next.FriendIDs(ctx, userID)
}
