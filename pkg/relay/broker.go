package relay

import (
	"errors"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// ErrNoActiveSession is returned when an inbound event arrives on a channel
// with no live session bound to it. It is a caller-visible condition, not a
// fault; the relay takes no corrective action.
var ErrNoActiveSession = errors.New("no active session for channel")

// Config holds broker tunables.
type Config struct {
	MaxMessagesPerSession int
	MessageTTL            time.Duration
	AckTTL                time.Duration
	DefaultBatch          int
	MaxBatch              int
}

// DefaultBrokerConfig mirrors the relay's production defaults.
func DefaultBrokerConfig() Config {
	return Config{
		MaxMessagesPerSession: 100,
		MessageTTL:            5 * time.Minute,
		AckTTL:                time.Hour,
		DefaultBatch:          10,
		MaxBatch:              100,
	}
}

// Broker wires the registry, binding table, ack log and telemetry into the
// relay's two public faces: event ingest from the chat platforms and the
// poll/ack protocol for the consumer.
type Broker struct {
	registry *Registry
	bindings *BindingTable
	acks     *AckLog
	stats    *Stats
	feed     *Feed
	cfg      Config
}

func NewBroker(cfg Config) *Broker {
	return &Broker{
		registry: NewRegistry(cfg.MaxMessagesPerSession, cfg.MessageTTL),
		bindings: NewBindingTable(),
		acks:     NewAckLog(cfg.AckTTL),
		stats:    NewStats(),
		feed:     NewFeed(),
		cfg:      cfg,
	}
}

// Registry exposes the session registry (management plane, sweeper).
func (b *Broker) Registry() *Registry { return b.registry }

// Bindings exposes the channel binding table.
func (b *Broker) Bindings() *BindingTable { return b.bindings }

// Acks exposes the acknowledgment log.
func (b *Broker) Acks() *AckLog { return b.acks }

// Stats exposes the metering store.
func (b *Broker) Stats() *Stats { return b.stats }

// Feed exposes the telemetry event feed.
func (b *Broker) Feed() *Feed { return b.feed }

// IngestResult reports the outcome of an accepted inbound event.
type IngestResult struct {
	Ignored     bool   `json:"ignored,omitempty"` // bot-authored, dropped to prevent loops
	MessageID   string `json:"message_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	QueueLength int    `json:"queue_length,omitempty"`
}

// Ingest resolves the event's channel to a session and enqueues the
// message. Bot-authored events are dropped without error. Unbound channels
// and bindings that point at a session the registry no longer knows both
// yield ErrNoActiveSession; the dangling binding is removed lazily.
func (b *Broker) Ingest(ev bus.InboundEvent) (IngestResult, error) {
	if ev.Author.Bot {
		return IngestResult{Ignored: true}, nil
	}

	sessionID, ok := b.bindings.Resolve(ev.ChannelID)
	if !ok {
		return IngestResult{}, ErrNoActiveSession
	}
	if _, live := b.registry.Get(sessionID); !live {
		b.bindings.Unbind(ev.ChannelID)
		logger.WarnCF("relay", "Dropped dangling channel binding", map[string]any{
			"channel_id": ev.ChannelID,
			"session_id": sessionID,
		})
		return IngestResult{}, ErrNoActiveSession
	}

	b.registry.Upsert(sessionID)
	queue, ok := b.registry.Queue(sessionID)
	if !ok {
		// Session expired between the liveness check and here; same outcome.
		return IngestResult{}, ErrNoActiveSession
	}

	msg, length, evicted := queue.Enqueue(Message{
		ChannelID:       ev.ChannelID,
		Content:         ev.Content,
		Author:          ev.Author,
		SourceID:        ev.SourceID,
		SourceTimestamp: ev.SourceTimestamp,
	})
	b.registry.countMessage(sessionID)
	b.stats.RecordEnqueue(sessionID, evicted)
	b.feed.Publish(TelemetryEvent{Kind: "enqueue", SessionID: sessionID, ChannelID: ev.ChannelID, MessageID: msg.ID})

	if evicted {
		// Silent by contract: the consumer is never told about drops.
		logger.WarnCF("relay", "Capacity eviction", map[string]any{
			"session_id": sessionID,
			"max":        b.cfg.MaxMessagesPerSession,
		})
		b.feed.Publish(TelemetryEvent{Kind: "eviction", SessionID: sessionID, Count: 1})
	}

	logger.DebugCF("relay", "Message enqueued", map[string]any{
		"session_id":   sessionID,
		"message_id":   msg.ID,
		"queue_length": length,
		"author":       ev.Author.Username,
	})

	return IngestResult{MessageID: msg.ID, SessionID: sessionID, QueueLength: length}, nil
}

// PollResult is one drained batch.
type PollResult struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	HasMore   bool      `json:"has_more"`
}

// Poll drains up to batchSize messages after sinceID and advances the
// queue's cursor by removing them. Polling an unknown or expired session is
// not an error; it returns an empty batch.
func (b *Broker) Poll(sessionID string, batchSize int, sinceID string) PollResult {
	if batchSize <= 0 {
		batchSize = b.cfg.DefaultBatch
	}
	if batchSize > b.cfg.MaxBatch {
		batchSize = b.cfg.MaxBatch
	}

	res := PollResult{SessionID: sessionID, Messages: []Message{}}

	queue, ok := b.registry.Queue(sessionID)
	if !ok {
		return res
	}
	b.registry.Touch(sessionID)

	batch, hasMore := queue.Drain(batchSize, sinceID)
	if len(batch) > 0 {
		res.Messages = batch
	}
	res.HasMore = hasMore

	b.stats.RecordDrain(sessionID, len(batch))
	if len(batch) > 0 {
		b.feed.Publish(TelemetryEvent{Kind: "drain", SessionID: sessionID, Count: len(batch)})
	}
	return res
}

// Ack records a delivery acknowledgment. It never fails the caller, even
// for unknown message IDs, and has no effect on any queue.
func (b *Broker) Ack(messageID, sessionID, status string) AckRecord {
	rec := b.acks.Record(messageID, sessionID, status)
	b.stats.RecordAck(sessionID)
	b.feed.Publish(TelemetryEvent{Kind: "ack", SessionID: sessionID, MessageID: messageID})
	logger.DebugCF("relay", "Message acknowledged", map[string]any{
		"message_id": messageID,
		"session_id": sessionID,
		"status":     status,
	})
	return rec
}

// Heartbeat refreshes the session's activity without touching its queue.
func (b *Broker) Heartbeat(sessionID string) bool {
	return b.registry.Touch(sessionID)
}

// StartSession creates or refreshes a session and optionally binds a
// channel to it. An empty sessionID generates a fresh one.
func (b *Broker) StartSession(sessionID, channelID string) (Session, bool) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	session, created := b.registry.Upsert(sessionID)
	if channelID != "" {
		b.bindings.Bind(channelID, sessionID)
	}
	if created {
		logger.InfoCF("relay", "Session created", map[string]any{
			"session_id": sessionID,
			"channel_id": channelID,
		})
	}
	return session, created
}

// StopSession unbinds the session's channels and removes it with its queue.
// Stopping an absent session succeeds; the operation is idempotent.
func (b *Broker) StopSession(sessionID string) {
	channels := b.bindings.UnbindSession(sessionID)
	removed := b.registry.Remove(sessionID)
	b.stats.Forget(sessionID)
	if removed {
		b.feed.Publish(TelemetryEvent{Kind: "session_stopped", SessionID: sessionID})
		logger.InfoCF("relay", "Session stopped", map[string]any{
			"session_id": sessionID,
			"unbound":    len(channels),
		})
	}
}

// ClearQueue empties a session's queue. Clearing an absent session is a
// no-op returning zero.
func (b *Broker) ClearQueue(sessionID string) int {
	queue, ok := b.registry.Queue(sessionID)
	if !ok {
		return 0
	}
	return queue.Clear()
}

// SessionCount returns the number of live sessions, for health reporting.
func (b *Broker) SessionCount() int {
	return b.registry.Len()
}
