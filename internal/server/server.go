// Package server constructs and starts the Pulse HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsechat/pulse/internal/configure"
	"github.com/pulsechat/pulse/internal/realtime"
)

// Server wires the transport layer to the presence core: the hub owning
// connections, the registry/router pair, and the coordinator driving the
// presence protocol against the storage collaborator.
type Server struct {
	cfg      *configure.Config
	hub      *Hub
	registry *realtime.Registry
	router   *realtime.Router
	presence *realtime.Coordinator
	upgrader websocket.Upgrader
}

// New builds a fully wired Server. The store is the durable collaborator for
// presence state and the friend graph; pass store.Noop{} to run without one.
func New(cfg *configure.Config, st realtime.PresenceStore) *Server {
	hub := NewHub(cfg)
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(hub)
	presence := realtime.NewCoordinator(registry, router, st, hub, cfg.Storage.Timeout)
	hub.Bind(presence)

	origins := newOriginPolicy(cfg.AllowedOrigins)

	return &Server{
		cfg:      cfg,
		hub:      hub,
		registry: registry,
		router:   router,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// StartHub starts the hub's event loop in a separate goroutine. This should be
// called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	zap.S().Infow("hub started and ready to manage WebSocket connections")
}

// Hub returns the hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// CreateServer creates and configures an HTTP server with the specified
// address and handler. It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	zap.S().Infow("server listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// active connections, waiting until they close or the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	zap.S().Infow("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.S().Errorw("HTTP server shutdown error", "error", err)
		return err
	}

	zap.S().Infow("HTTP server shutdown completed")
	return nil
}
