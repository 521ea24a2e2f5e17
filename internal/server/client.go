// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsechat/pulse/internal/configure"
)

// Client represents one live WebSocket connection. id is the opaque connection
// identifier the registry and router track; userID is empty for anonymous
// connections, which may still join and receive rooms but carry no presence.
type Client struct {
	id             string
	userID         string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      configure.RateLimitConfig
	presenceDone   chan struct{}
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered so slow consumers drop events instead of stalling broadcasts.
func NewClient(conn *websocket.Conn, hub *Hub, addr, userID string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.maxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		userID:         userID,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		closed:         false,
		maxMessageSize: hub.maxMessageSize,
		rateLimiter:    newRateLimiter(hub.rateLimit.Burst, hub.rateLimit.RefillInterval),
		rateLimit:      hub.rateLimit,
		presenceDone:   make(chan struct{}),
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		zap.S().Warnw("error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			zap.S().Warnw("error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		zap.S().Warnw("message exceeded maximum size",
			"addr", c.addr,
			"limit", c.maxMessageSize,
		)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		zap.S().Debugw("client closed connection", "addr", c.addr, "error", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		zap.S().Debugw("client connection closed", "addr", c.addr, "error", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		zap.S().Warnw("unexpected WebSocket error", "addr", c.addr, "error", err)
		return true
	}

	zap.S().Warnw("WebSocket read error", "addr", c.addr, "error", err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		zap.S().Warnw("rate limit exceeded; discarding frame",
			"addr", c.addr,
			"burst", c.rateLimit.Burst,
			"interval", c.rateLimit.RefillInterval,
		)
		return false
	}
	return true
}

// handleFrame routes one inbound client frame. Clients may only ask to join or
// leave chat rooms; everything else is ignored.
func (c *Client) handleFrame(raw []byte) {
	var frame Envelope
	if err := json.Unmarshal(raw, &frame); err != nil {
		zap.S().Debugw("invalid frame", "addr", c.addr, "error", err)
		return
	}

	switch frame.Event {
	case eventJoinRoom:
		if roomID, ok := decodeRoomID(frame.Data); ok {
			c.hub.presence.JoinRoom(c.id, roomID)
		}
	case eventLeaveRoom:
		if roomID, ok := decodeRoomID(frame.Data); ok {
			c.hub.presence.LeaveRoom(c.id, roomID)
		}
	default:
		zap.S().Debugw("ignoring unknown event", "addr", c.addr, "event", frame.Event)
	}
}

func decodeRoomID(data json.RawMessage) (string, bool) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		return "", false
	}
	return roomID, true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				zap.S().Warnw("error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.handleFrame(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			zap.S().Warnw("error closing connection in writePump", "error", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		zap.S().Warnw("error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			zap.S().Warnw("error writing close message", "addr", c.addr, "error", err)
		}
	}
	return false
}

// writeTextMessage writes a text message and any queued messages as separate
// frames so each envelope stays independently parseable.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		zap.S().Warnw("error writing message", "addr", c.addr, "error", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
			zap.S().Warnw("error writing queued message", "addr", c.addr, "error", err)
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		zap.S().Warnw("error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		zap.S().Warnw("error writing ping message", "addr", c.addr, "error", err)
		return false
	}
	return true
}
