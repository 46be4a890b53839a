package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

const testToken = "test-api-token"

func mustIngest(t *testing.T, broker *relay.Broker, channelID, content string) {
	t.Helper()
	if _, err := broker.Ingest(bus.InboundEvent{
		Channel:   "test",
		ChannelID: channelID,
		Author:    bus.Author{ID: "u1"},
		Content:   content,
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *relay.Broker) {
	t.Helper()
	broker := relay.NewBroker(relay.DefaultBrokerConfig())
	srv := New(broker, nil, Options{
		APIToken:     testToken,
		DefaultBatch: 10,
		MaxBatch:     100,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, broker
}

func doRequest(t *testing.T, method, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts, broker := newTestServer(t)
	broker.StartSession("claude-health", "")

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["sessions"].(float64) != 1 {
		t.Errorf("sessions = %v, want 1", body["sessions"])
	}
}

func TestBearerRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/claude/poll/s1"},
		{http.MethodPost, "/claude/ack/m1"},
		{http.MethodPost, "/api/sessions/claude-x"},
		{http.MethodDelete, "/api/sessions/claude-x"},
	} {
		resp, body := doRequest(t, tc.method, ts.URL+tc.path, nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.path, resp.StatusCode)
		}
		if body["error"] != "Unauthorized" {
			t.Errorf("%s %s: error = %v", tc.method, tc.path, body["error"])
		}
	}

	// Wrong token is also rejected.
	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/claude/poll/s1", nil, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", resp.StatusCode)
	}
}

func TestMissingTokenConfigClosesPlane(t *testing.T) {
	broker := relay.NewBroker(relay.DefaultBrokerConfig())
	srv := New(broker, nil, Options{DefaultBatch: 10, MaxBatch: 100})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/claude/poll/s1", nil, "anything")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if body["error"] != "APITokenNotConfigured" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestWebhookToPollRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	// Create a session bound to a channel.
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-rt-1",
		map[string]string{"channel_id": "chan-1"}, testToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("session create status = %d", resp.StatusCode)
	}
	if body["created"] != true {
		t.Fatalf("created = %v", body["created"])
	}

	// Push two messages through the webhook.
	for i := 1; i <= 2; i++ {
		resp, body = doRequest(t, http.MethodPost, ts.URL+"/webhook/inbound", map[string]any{
			"channel_id": "chan-1",
			"content":    fmt.Sprintf("msg %d", i),
			"author":     map[string]any{"id": "u1", "username": "alice"},
		}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("webhook status = %d (%v)", resp.StatusCode, body)
		}
		if body["session_id"] != "claude-rt-1" {
			t.Fatalf("session_id = %v", body["session_id"])
		}
	}
	if body["queue_length"].(float64) != 2 {
		t.Errorf("queue_length = %v, want 2", body["queue_length"])
	}

	// Poll drains both.
	resp, body = doRequest(t, http.MethodGet, ts.URL+"/claude/poll/claude-rt-1", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll status = %d", resp.StatusCode)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if body["has_more"] != false {
		t.Errorf("has_more = %v", body["has_more"])
	}
	first := msgs[0].(map[string]any)
	if first["content"] != "msg 1" {
		t.Errorf("first message content = %v", first["content"])
	}

	// Ack the first message.
	resp, body = doRequest(t, http.MethodPost, ts.URL+"/claude/ack/"+first["id"].(string),
		map[string]string{"session_id": "claude-rt-1", "status": "delivered"}, testToken)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Errorf("ack response: %d %v", resp.StatusCode, body)
	}

	// Second poll is empty.
	_, body = doRequest(t, http.MethodGet, ts.URL+"/claude/poll/claude-rt-1", nil, testToken)
	if len(body["messages"].([]any)) != 0 {
		t.Error("drained messages must not be redelivered")
	}
}

func TestWebhookUnboundChannel(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/webhook/inbound", map[string]any{
		"channel_id": "nowhere",
		"content":    "hello",
		"author":     map[string]any{"id": "u1"},
	}, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if body["error"] != "NoActiveSession" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestWebhookBotEventIgnored(t *testing.T) {
	ts, broker := newTestServer(t)
	broker.StartSession("claude-bot", "chan-b")

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/webhook/inbound", map[string]any{
		"channel_id": "chan-b",
		"content":    "beep",
		"author":     map[string]any{"id": "bot1", "bot": true},
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["ignored"] != true {
		t.Errorf("ignored = %v", body["ignored"])
	}
	if got := broker.Poll("claude-bot", 10, ""); len(got.Messages) != 0 {
		t.Error("bot event must not be queued")
	}
}

func TestWebhookKeyEnforced(t *testing.T) {
	broker := relay.NewBroker(relay.DefaultBrokerConfig())
	srv := New(broker, nil, Options{
		APIToken:     testToken,
		WebhookKey:   "hook-secret",
		DefaultBatch: 10,
		MaxBatch:     100,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	payload := `{"channel_id":"c","content":"x","author":{"id":"u"}}`

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook/inbound", strings.NewReader(payload))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/webhook/inbound", strings.NewReader(payload))
	req.Header.Set("X-Webhook-Key", "hook-secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	// Key accepted; channel unbound, so the relay answers 404.
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("valid key: status = %d, want 404", resp.StatusCode)
	}
}

func TestPollAbsentSessionFailSoft(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/claude/poll/claude-ghost", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body["messages"].([]any)) != 0 || body["has_more"] != false {
		t.Errorf("expected empty fail-soft response, got %v", body)
	}
}

func TestPollInvalidBatch(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, batch := range []string{"abc", "0", "-5"} {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/claude/poll/s1?batch="+batch, nil, testToken)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("batch=%s: status = %d, want 400", batch, resp.StatusCode)
		}
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	// Invalid ids are rejected before any state changes.
	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/sessions/bad..id", nil, testToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-life", nil, testToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d", resp.StatusCode)
	}

	// Second create touches instead.
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-life", nil, testToken)
	if resp.StatusCode != http.StatusOK || body["created"] != false {
		t.Errorf("re-create: %d created=%v", resp.StatusCode, body["created"])
	}

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-life/heartbeat", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("heartbeat: status = %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodDelete, ts.URL+"/api/sessions/claude-life", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stop: status = %d", resp.StatusCode)
	}

	// Heartbeat after stop reports the session gone; stop stays idempotent.
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-life/heartbeat", nil, testToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("heartbeat after stop: status = %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, http.MethodDelete, ts.URL+"/api/sessions/claude-life", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("repeat stop: status = %d", resp.StatusCode)
	}
}

func TestBindEndpoint(t *testing.T) {
	ts, broker := newTestServer(t)
	broker.StartSession("claude-bind", "")

	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-bind/bind",
		map[string]string{"channel_id": "chan-9"}, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bind: status = %d", resp.StatusCode)
	}
	if got, ok := broker.Bindings().Resolve("chan-9"); !ok || got != "claude-bind" {
		t.Errorf("binding = %q, %v", got, ok)
	}

	// Binding an absent session fails.
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-ghost/bind",
		map[string]string{"channel_id": "chan-9"}, testToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bind absent: status = %d", resp.StatusCode)
	}

	// Missing channel_id fails.
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/sessions/claude-bind/bind", nil, testToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bind without channel: status = %d", resp.StatusCode)
	}
}

func TestClearReplies(t *testing.T) {
	ts, broker := newTestServer(t)
	broker.StartSession("claude-clear", "chan-c")
	for i := 0; i < 3; i++ {
		mustIngest(t, broker, "chan-c", "m")
	}

	resp, body := doRequest(t, http.MethodDelete, ts.URL+"/api/replies/claude-clear", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["cleared"].(float64) != 3 {
		t.Errorf("cleared = %v, want 3", body["cleared"])
	}
	if got := broker.Poll("claude-clear", 10, ""); len(got.Messages) != 0 {
		t.Error("queue should be empty after clear")
	}
}
