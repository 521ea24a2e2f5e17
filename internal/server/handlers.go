// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the internal emit endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// WebSocketHandler upgrades the HTTP connection, reads the client's identity
// from the handshake, and hands the connection to the hub. A missing or
// placeholder userId yields an anonymous relay-only connection: it can join
// and receive rooms but never registers or emits presence.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("userId")
	// Browser clients sometimes serialize a missing id as the literal string
	// "undefined"; treat it the same as absent.
	if userID == "undefined" {
		userID = ""
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, userID)

	// Register the client with the hub; the hub will launch the pump goroutines.
	s.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Pulse server is running!")
}

// emitRequest is the body of an internal emit call from the message or
// notification services. Exactly one of Room or User must be set: Room fans
// the event out to every member of that room key, User targets one arbitrary
// live connection of that user.
type emitRequest struct {
	Room  string          `json:"room,omitempty"`
	User  string          `json:"user,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type emitResponse struct {
	Delivered bool `json:"delivered"`
}

// EmitHandler lets trusted backend services push events into rooms or at a
// single user's socket. The room key arrives fully formed ("room:<id>" or
// "personal:<userId>"); this endpoint is only the delivery mechanism and
// never inspects the payload.
func (s *Server) EmitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Event == "" || (req.Room == "") == (req.User == "") {
		http.Error(w, "Exactly one of room or user is required, along with an event name", http.StatusBadRequest)
		return
	}

	resp := emitResponse{Delivered: true}
	if req.User != "" {
		resp.Delivered = s.presence.DeliverToUser(req.User, req.Event, req.Data)
	} else {
		s.presence.Broadcast(req.Room, req.Event, req.Data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		zap.S().Warnw("error writing emit response", "error", err)
	}
}
