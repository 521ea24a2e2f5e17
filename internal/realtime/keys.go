package realtime

// Room key prefixes are part of the wire contract shared with the message and
// notification services; they must not change.
const (
	personalPrefix = "personal:"
	roomPrefix     = "room:"
)

// PersonalRoom returns the implicit room key that targets every live
// connection of a single user.
func PersonalRoom(userID string) string {
	return personalPrefix + userID
}

// ChatRoom returns the room key for an ad-hoc chat or group channel.
func ChatRoom(chatOrGroupID string) string {
	return roomPrefix + chatOrGroupID
}
