package relay

import (
	"sync"
	"time"
)

// SessionStats aggregates per-session relay counters. Capacity evictions
// and TTL expiries are silent data loss on the wire; this is where they
// become observable.
type SessionStats struct {
	SessionID    string    `json:"session_id"`
	Enqueued     int64     `json:"enqueued"`
	Drained      int64     `json:"drained"`
	Evicted      int64     `json:"evicted"`
	Expired      int64     `json:"expired"`
	Acked        int64     `json:"acked"`
	Polls        int64     `json:"polls"`
	LastActivity time.Time `json:"last_activity"`
}

// Stats is the relay's in-memory metering store.
type Stats struct {
	mu       sync.RWMutex
	sessions map[string]*SessionStats
	now      func() time.Time
}

func NewStats() *Stats {
	return &Stats{
		sessions: make(map[string]*SessionStats),
		now:      time.Now,
	}
}

func (s *Stats) get(sessionID string) *SessionStats {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &SessionStats{SessionID: sessionID}
		s.sessions[sessionID] = st
	}
	st.LastActivity = s.now()
	return st
}

func (s *Stats) RecordEnqueue(sessionID string, evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(sessionID)
	st.Enqueued++
	if evicted {
		st.Evicted++
	}
}

func (s *Stats) RecordDrain(sessionID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(sessionID)
	st.Polls++
	st.Drained += int64(n)
}

func (s *Stats) RecordExpired(sessionID string, n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(sessionID).Expired += int64(n)
}

func (s *Stats) RecordAck(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(sessionID).Acked++
}

// Forget drops counters for a removed session.
func (s *Stats) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Session returns a copy of the counters for one session.
func (s *Stats) Session(sessionID string) (SessionStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return SessionStats{}, false
	}
	return *st, true
}

// Snapshot returns a copy of all session counters.
func (s *Stats) Snapshot() map[string]SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SessionStats, len(s.sessions))
	for id, st := range s.sessions {
		out[id] = *st
	}
	return out
}

// TelemetryEvent is one observable relay occurrence, published to feed
// subscribers (the /debug/events stream) and logs. Never part of a poll
// response.
type TelemetryEvent struct {
	Kind      string    `json:"kind"` // enqueue | drain | eviction | expiry | ack | session_expired | session_stopped
	SessionID string    `json:"session_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed is a best-effort fan-out of telemetry events. Slow subscribers have
// events dropped rather than ever blocking a relay operation.
type Feed struct {
	mu   sync.Mutex
	subs map[chan TelemetryEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan TelemetryEvent]struct{})}
}

// Subscribe registers a new subscriber channel. Call the returned cancel
// function to unsubscribe; the channel is closed on cancel.
func (f *Feed) Subscribe() (<-chan TelemetryEvent, func()) {
	ch := make(chan TelemetryEvent, 64)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			close(ch)
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers without blocking. Sends
// happen under the lock so a concurrent unsubscribe cannot close a channel
// mid-send; the sends themselves never block.
func (f *Feed) Publish(ev TelemetryEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
