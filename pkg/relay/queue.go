package relay

import (
	"sync"
	"time"
)

// Queue is the ordered, bounded message buffer for one session. All
// mutations are serialized by the queue's own mutex; the registry's map
// lock is never held across queue operations, so sessions do not contend
// with each other.
type Queue struct {
	mu        sync.Mutex
	sessionID string
	maxLen    int
	ttl       time.Duration
	nextID    func() string
	now       func() time.Time
	messages  []Message
}

func newQueue(sessionID string, maxLen int, ttl time.Duration, nextID func() string, now func() time.Time) *Queue {
	return &Queue{
		sessionID: sessionID,
		maxLen:    maxLen,
		ttl:       ttl,
		nextID:    nextID,
		now:       now,
	}
}

// Enqueue assigns the message its ID, receipt time and expiry, and appends
// it at the tail. When the bound is exceeded the oldest message is dropped
// silently; the returned evicted flag exists for telemetry only and is
// never surfaced to the producer or the consumer.
func (q *Queue) Enqueue(m Message) (stored Message, length int, evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	m.ID = q.nextID()
	m.SessionID = q.sessionID
	m.ReceivedAt = now
	m.ExpiresAt = now.Add(q.ttl)

	q.messages = append(q.messages, m)
	if len(q.messages) > q.maxLen {
		over := len(q.messages) - q.maxLen
		q.messages = append(q.messages[:0], q.messages[over:]...)
		evicted = true
	}

	return m, len(q.messages), evicted
}

// Drain returns up to maxBatch messages with ID > sinceID in FIFO order and
// removes them from the queue. A message handed to a drain is considered
// delivered; it will never be returned again. hasMore reports whether
// further messages remained after the batch.
func (q *Queue) Drain(maxBatch int, sinceID string) (batch []Message, hasMore bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Messages are ordered by ID, so the cursor is a prefix boundary.
	start := 0
	for start < len(q.messages) && sinceID != "" && q.messages[start].ID <= sinceID {
		start++
	}

	end := start + maxBatch
	if end > len(q.messages) {
		end = len(q.messages)
	}
	if start == end {
		return nil, false
	}

	batch = make([]Message, end-start)
	copy(batch, q.messages[start:end])

	hasMore = end < len(q.messages)
	q.messages = append(q.messages[:start], q.messages[end:]...)

	return batch, hasMore
}

// Expire removes all messages whose expiry has passed and returns how many
// were dropped. Called by the sweeper; a message drained before its TTL
// simply no longer exists here, so expiry is idempotent by construction.
func (q *Queue) Expire(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.messages[:0]
	dropped := 0
	for _, m := range q.messages {
		if m.ExpiresAt.After(now) {
			kept = append(kept, m)
		} else {
			dropped++
		}
	}
	q.messages = kept
	return dropped
}

// Clear empties the queue and returns the number of messages removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.messages)
	q.messages = nil
	return n
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
