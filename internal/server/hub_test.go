package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsechat/pulse/internal/configure"
)

// TestEncodeEvent verifies the outbound envelope shape clients parse.
func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent("presence:update", map[string]any{"userId": "A", "online": true})
	if err != nil {
		t.Fatalf("encodeEvent returned error: %v", err)
	}

	var frame struct {
		Event string `json:"event"`
		Data  struct {
			UserID string `json:"userId"`
			Online bool   `json:"online"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if frame.Event != "presence:update" || frame.Data.UserID != "A" || !frame.Data.Online {
		t.Errorf("unexpected envelope: %s", data)
	}
}

// TestEncodeEventOmitsEmptyPayload verifies nil payloads produce no data field.
func TestEncodeEventOmitsEmptyPayload(t *testing.T) {
	data, err := encodeEvent("ping", nil)
	if err != nil {
		t.Fatalf("encodeEvent returned error: %v", err)
	}
	if string(data) != `{"event":"ping"}` {
		t.Errorf("expected bare event frame, got %s", data)
	}
}

// TestDecodeRoomID verifies room id extraction rejects malformed or empty ids.
func TestDecodeRoomID(t *testing.T) {
	if id, ok := decodeRoomID(json.RawMessage(`"g1"`)); !ok || id != "g1" {
		t.Errorf("expected g1, got %q (ok=%v)", id, ok)
	}
	if _, ok := decodeRoomID(json.RawMessage(`""`)); ok {
		t.Error("empty room id should be rejected")
	}
	if _, ok := decodeRoomID(json.RawMessage(`{"nested":1}`)); ok {
		t.Error("non-string room id should be rejected")
	}
}

// TestHubDeliverUnknownConnection verifies delivering to an unregistered
// connection reports failure without side effects.
func TestHubDeliverUnknownConnection(t *testing.T) {
	hub := NewHub(testConfig())

	if hub.Deliver("missing", "newMessage", "hello") {
		t.Error("delivery to an unknown connection should fail")
	}
}

// TestOriginPolicy verifies origin normalization, wildcard handling, and the
// non-browser (no Origin header) allowance.
func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"https://Chat.Example.COM", "not a url", ""})

	allowed := httptest.NewRequest("GET", "/ws", nil)
	allowed.Header.Set("Origin", "https://chat.example.com")
	if !policy.check(allowed) {
		t.Error("configured origin should be allowed")
	}

	blocked := httptest.NewRequest("GET", "/ws", nil)
	blocked.Header.Set("Origin", "https://evil.example.com")
	if policy.check(blocked) {
		t.Error("unlisted origin should be blocked")
	}

	noOrigin := httptest.NewRequest("GET", "/ws", nil)
	if !policy.check(noOrigin) {
		t.Error("requests without an Origin header should be allowed")
	}

	wildcard := newOriginPolicy([]string{"*"})
	if !wildcard.check(blocked) {
		t.Error("wildcard policy should allow any origin")
	}
}

// TestRateLimiterExhaustionAndRefill verifies the token bucket blocks once the
// burst is spent and recovers after the refill interval.
func TestRateLimiterExhaustionAndRefill(t *testing.T) {
	limiter := newRateLimiter(3, 30*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !limiter.allow() {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if limiter.allow() {
		t.Error("request beyond burst should be rejected")
	}

	time.Sleep(40 * time.Millisecond)
	if !limiter.allow() {
		t.Error("request after refill interval should be allowed")
	}
}

// testConfig returns a configuration suitable for in-process tests.
func testConfig() *configure.Config {
	return &configure.Config{
		Addr:            ":0",
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  4096,
		ShutdownTimeout: 5 * time.Second,
		RateLimit: configure.RateLimitConfig{
			Burst:          100,
			RefillInterval: time.Second,
		},
		Storage: configure.StorageConfig{Timeout: 2 * time.Second},
		Emit:    configure.EmitConfig{Secret: "test-secret"},
	}
}
