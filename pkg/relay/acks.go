package relay

import (
	"sync"
	"time"
)

// AckRecord tracks a consumer acknowledgment. Acks are delivery telemetry
// only: recording one never re-queues a message and never gates a poll.
type AckRecord struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// AckLog holds recent acknowledgment records with their own TTL,
// independent of session or message lifetimes.
type AckLog struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]AckRecord // messageID -> latest ack
	now     func() time.Time
}

func NewAckLog(ttl time.Duration) *AckLog {
	return &AckLog{
		ttl:     ttl,
		records: make(map[string]AckRecord),
		now:     time.Now,
	}
}

// Record stores or overwrites the ack for a message. Unknown message IDs
// are accepted; the log has no view into queue state by design.
func (l *AckLog) Record(messageID, sessionID, status string) AckRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := AckRecord{
		MessageID: messageID,
		SessionID: sessionID,
		Status:    status,
		Timestamp: l.now(),
	}
	l.records[messageID] = rec
	return rec
}

// Get returns the recorded ack for a message, if any.
func (l *AckLog) Get(messageID string) (AckRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[messageID]
	return rec, ok
}

// Prune drops records older than the log's TTL and returns how many were
// removed.
func (l *AckLog) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := now.Add(-l.ttl)
	for id, rec := range l.records {
		if rec.Timestamp.Before(cutoff) {
			delete(l.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live ack records.
func (l *AckLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
