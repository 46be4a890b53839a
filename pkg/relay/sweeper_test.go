package relay

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_RemovesIdleSessions(t *testing.T) {
	b := testBroker()
	b.StartSession("idle", "chan1")
	b.StartSession("busy", "chan2")

	s := NewSweeper(b, time.Minute, 30*time.Minute)

	// "idle" last active an hour ago, "busy" just now.
	b.Registry().now = func() time.Time { return time.Now().Add(-time.Hour) }
	b.Registry().Touch("idle")
	b.Registry().now = time.Now
	b.Registry().Touch("busy")

	s.Sweep(time.Now())

	if _, ok := b.Registry().Get("idle"); ok {
		t.Error("idle session survived sweep")
	}
	if _, ok := b.Registry().Get("busy"); !ok {
		t.Error("busy session was swept")
	}
	// Binding reverse-cleaned with the session.
	if _, ok := b.Bindings().Resolve("chan1"); ok {
		t.Error("binding for swept session not cleaned")
	}
	if _, ok := b.Bindings().Resolve("chan2"); !ok {
		t.Error("binding for live session removed")
	}
}

func TestSweeper_PollAfterExpiryFailSoft(t *testing.T) {
	b := testBroker()
	b.StartSession("S", "chan1")
	b.Ingest(inbound("chan1", "pending"))

	s := NewSweeper(b, time.Minute, 30*time.Minute)
	s.Sweep(time.Now().Add(time.Hour))

	res := b.Poll("S", 10, "")
	if len(res.Messages) != 0 || res.HasMore {
		t.Errorf("poll after session expiry: got %d messages, hasMore=%v", len(res.Messages), res.HasMore)
	}
}

func TestSweeper_ExpiresMessagesBeforeSession(t *testing.T) {
	cfg := DefaultBrokerConfig()
	cfg.MessageTTL = time.Minute
	b := NewBroker(cfg)
	b.StartSession("S", "chan1")
	b.Ingest(inbound("chan1", "short-lived"))

	s := NewSweeper(b, time.Minute, 24*time.Hour)
	// Five minutes later: message TTL passed, session still well within
	// its timeout.
	s.Sweep(time.Now().Add(5 * time.Minute))

	if _, ok := b.Registry().Get("S"); !ok {
		t.Fatal("session must outlive its expired messages")
	}
	res := b.Poll("S", 10, "")
	if len(res.Messages) != 0 {
		t.Errorf("expired message drained: %v", res.Messages)
	}
	st, _ := b.Stats().Session("S")
	if st.Expired != 1 {
		t.Errorf("expiries recorded: got %d, want 1", st.Expired)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	b := testBroker()
	s := NewSweeper(b, 10*time.Millisecond, time.Hour)

	s.Start(context.Background())
	s.Start(context.Background()) // no-op
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop() // no-op
}

func TestFeed_PublishSubscribe(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(TelemetryEvent{Kind: "eviction", SessionID: "S", Count: 2})

	select {
	case ev := <-ch:
		if ev.Kind != "eviction" || ev.Count != 2 {
			t.Errorf("event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	f := NewFeed()
	_, cancel := f.Subscribe()
	defer cancel()

	// More events than the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			f.Publish(TelemetryEvent{Kind: "enqueue"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
