// Package server coordinates client registration, event delivery, and
// connection cleanup for the Pulse WebSocket transport via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsechat/pulse/internal/configure"
	"github.com/pulsechat/pulse/internal/realtime"
)

// Hub owns every live WebSocket client for its lifetime and is the only place
// connections are created or destroyed. The room router and presence
// coordinator refer to connections by id and deliver through the hub, which
// implements realtime.Deliverer. Lifecycle events are serialized through the
// hub's run loop; the presence protocol itself runs on per-connection
// goroutines so storage calls never block unrelated connections.
type Hub struct {
	clients        map[*Client]bool
	byID           map[string]*Client
	register       chan *Client
	unregister     chan *Client
	presence       *realtime.Coordinator
	maxMessageSize int64
	rateLimit      configure.RateLimitConfig
	mutex          sync.RWMutex
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewHub creates a Hub with the transport limits from cfg. Bind must be called
// with the presence coordinator before Run.
func NewHub(cfg *configure.Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[*Client]bool),
		byID:           make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimit:      cfg.RateLimit,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Bind attaches the presence coordinator. The hub and coordinator reference
// each other, so the coordinator is constructed after the hub and bound here.
func (h *Hub) Bind(presence *realtime.Coordinator) {
	h.presence = presence
}

// Deliver implements realtime.Deliverer: it encodes the event envelope and
// queues it on the target connection's send buffer. A false return means the
// connection is gone or its buffer is full; the event is dropped either way.
func (h *Hub) Deliver(connID, event string, payload any) bool {
	data, err := encodeEvent(event, payload)
	if err != nil {
		zap.S().Errorw("failed to encode event", "event", event, "error", err)
		return false
	}

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, exists := h.byID[connID]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				zap.S().Warnw("received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	h.byID[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	zap.S().Infow("client connected",
		"connection", client.id,
		"addr", client.addr,
		"user", client.userID,
		"total", clientCount,
	)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	// Connect-time presence setup does storage I/O, so it runs off the hub
	// loop. presenceDone orders it before the same connection's teardown.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(client.presenceDone)
		h.presence.Connected(h.ctx, client.userID, client.id)
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	delete(h.byID, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)

	zap.S().Infow("client disconnected",
		"connection", client.id,
		"addr", client.addr,
		"user", client.userID,
		"total", clientCount,
	)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-client.presenceDone
		h.presence.Disconnected(context.Background(), client.userID, client.id)
	}()
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	zap.S().Infow("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					zap.S().Warnw("error closing client connection",
						"addr", client.addr,
						"error", err,
					)
				}
			}
		}
	}

	zap.S().Infow("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	zap.S().Infow("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.S().Infow("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		zap.S().Warnw("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
