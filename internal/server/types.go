// Package server defines the wire envelope and shared helpers used across the
// client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Envelope is the JSON frame exchanged with clients: a named event plus an
// opaque payload. Inbound frames carry joinRoom/leaveRoom requests; outbound
// frames carry presence updates, snapshots, and relayed room events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names accepted from clients. Anything else is ignored.
const (
	eventJoinRoom  = "joinRoom"
	eventLeaveRoom = "leaveRoom"
)

// encodeEvent marshals an outbound frame.
func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: payload})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
