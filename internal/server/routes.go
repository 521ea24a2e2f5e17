// Package server wires HTTP handlers into a ServeMux for the Pulse
// application via routing helpers.
package server

import (
	"net/http"

	"go.uber.org/zap"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, and the internal emit endpoint.
// The emit endpoint is only registered when a shared secret is configured.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)

	if s.cfg.Emit.Secret != "" {
		mux.HandleFunc("/emit", requireEmitAuth(s.cfg.Emit.Secret, s.EmitHandler))
	} else {
		zap.S().Warnw("emit secret not configured; /emit endpoint disabled")
	}

	return mux
}
