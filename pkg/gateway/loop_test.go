package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

type captureSender struct {
	mu      sync.Mutex
	notices []bus.OutboundNotice
}

func (s *captureSender) Send(ctx context.Context, n bus.OutboundNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *captureSender) wait(t *testing.T, want int) []bus.OutboundNotice {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.notices)
		s.mu.Unlock()
		if n >= want {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bus.OutboundNotice, len(s.notices))
	copy(out, s.notices)
	return out
}

func startLoop(t *testing.T) (*bus.EventBus, *relay.Broker, *captureSender, func()) {
	t.Helper()
	eventBus := bus.NewEventBus()
	broker := relay.NewBroker(relay.DefaultBrokerConfig())
	sender := &captureSender{}
	loop := NewLoop(eventBus, broker, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	return eventBus, broker, sender, func() {
		cancel()
		eventBus.Close()
		<-done
	}
}

func TestLoopIngestsBoundChannelMessage(t *testing.T) {
	eventBus, broker, sender, stop := startLoop(t)
	defer stop()

	broker.StartSession("claude-test-1", "chan-1")

	err := eventBus.PublishInbound(context.Background(), bus.InboundEvent{
		Channel:   "discord",
		ChannelID: "chan-1",
		Author:    bus.Author{ID: "u1", Username: "alice"},
		Content:   "hello claude",
	})
	if err != nil {
		t.Fatalf("PublishInbound: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res := broker.Poll("claude-test-1", 10, "")
		if len(res.Messages) == 1 {
			if res.Messages[0].Content != "hello claude" {
				t.Fatalf("content = %q", res.Messages[0].Content)
			}
			if len(sender.wait(t, 0)) != 0 {
				t.Error("no notice expected for a bound channel")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("message never reached the session queue")
}

func TestLoopSendsHintForUnboundChannel(t *testing.T) {
	eventBus, _, sender, stop := startLoop(t)
	defer stop()

	err := eventBus.PublishInbound(context.Background(), bus.InboundEvent{
		Channel:   "telegram",
		ChannelID: "chat-99",
		Author:    bus.Author{ID: "u2"},
		Content:   "anyone there?",
	})
	if err != nil {
		t.Fatalf("PublishInbound: %v", err)
	}

	notices := sender.wait(t, 1)
	if len(notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(notices))
	}
	if notices[0].ChannelID != "chat-99" || notices[0].Channel != "telegram" {
		t.Errorf("notice routed to %s/%s", notices[0].Channel, notices[0].ChannelID)
	}
	if notices[0].Content != noSessionHint {
		t.Errorf("unexpected hint: %q", notices[0].Content)
	}
}

func TestControlStartReturnsExistingBinding(t *testing.T) {
	broker := relay.NewBroker(relay.DefaultBrokerConfig())
	control := NewControl(broker)

	first, created := control.StartSession("", "chan-1")
	if !created {
		t.Fatal("first start should create a session")
	}

	second, created := control.StartSession("", "chan-1")
	if created {
		t.Error("second start should reuse the existing binding")
	}
	if second != first {
		t.Errorf("got session %q, want %q", second, first)
	}
}

func TestControlStopResolvesBinding(t *testing.T) {
	broker := relay.NewBroker(relay.DefaultBrokerConfig())
	control := NewControl(broker)

	sessionID, _ := control.StartSession("", "chan-1")
	control.StopSession("chan-1")

	if _, ok := broker.Registry().Get(sessionID); ok {
		t.Error("session should be removed after stop")
	}
	if _, ok := broker.Bindings().Resolve("chan-1"); ok {
		t.Error("binding should be removed after stop")
	}

	// Stopping an unbound channel is a no-op.
	control.StopSession("chan-1")
}
