package realtime

import "time"

// Event names emitted by the presence core. EventOnlineFriends matches the
// name the web client already listens on.
const (
	EventPresenceUpdate = "presence:update"
	EventOnlineFriends  = "getOnlineUsers"
)

// PresenceUpdate is the payload delivered to each friend's personal room when
// a user comes online or goes offline. LastSeen is set only on the offline
// transition.
type PresenceUpdate struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
