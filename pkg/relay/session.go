package relay

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is a logical, time-bounded conversation context. An empty queue
// is a legal state; a session exists until it idles past the timeout or is
// stopped explicitly.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	// MessageCount is the total ever enqueued, not the current queue length.
	MessageCount uint64 `json:"message_count"`
}

// NewSessionID generates a session ID in the relay's prefix-timestamp-random
// form, e.g. "claude-1756400000000-3f9c2a1b".
func NewSessionID() string {
	rand := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("claude-%d-%s", time.Now().UnixMilli(), rand)
}

// ValidateSessionID rejects IDs that are empty, oversized, or contain path
// separators or "..", since session IDs appear in URL paths and storage keys.
func ValidateSessionID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("session id is required")
	}
	if len(trimmed) > 128 {
		return fmt.Errorf("session id exceeds 128 characters")
	}
	if strings.ContainsAny(trimmed, "/\\ ") || strings.Contains(trimmed, "..") {
		return fmt.Errorf("session id must not contain spaces, path separators or '..'")
	}
	return nil
}

type sessionEntry struct {
	mu      sync.Mutex
	session Session
	queue   *Queue
}

// Registry owns all sessions and their queues. Map access is guarded by a
// read-write lock held only for lookups and inserts; per-session state has
// its own lock so operations on different sessions never block each other.
// Removing a session removes its queue in the same critical section.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	maxMessages int
	messageTTL  time.Duration
	idCounter   atomic.Uint64
	now         func() time.Time
}

func NewRegistry(maxMessages int, messageTTL time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*sessionEntry),
		maxMessages: maxMessages,
		messageTTL:  messageTTL,
		now:         time.Now,
	}
}

func (r *Registry) nextMessageID() string {
	return FormatMessageID(r.idCounter.Add(1))
}

// Upsert creates the session if absent, otherwise refreshes its activity.
// The second return reports whether the session was created by this call.
func (r *Registry) Upsert(sessionID string) (Session, bool) {
	r.mu.Lock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		now := r.now()
		entry = &sessionEntry{
			session: Session{ID: sessionID, CreatedAt: now, LastActivity: now},
			queue:   newQueue(sessionID, r.maxMessages, r.messageTTL, r.nextMessageID, r.now),
		}
		r.sessions[sessionID] = entry
		// Copy before unlocking: once the entry is in the map another
		// goroutine may touch it.
		s := entry.session
		r.mu.Unlock()
		return s, true
	}
	r.mu.Unlock()

	entry.mu.Lock()
	entry.session.LastActivity = r.now()
	s := entry.session
	entry.mu.Unlock()
	return s, false
}

// Get returns a copy of the session state, or false if absent.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	entry.mu.Lock()
	s := entry.session
	entry.mu.Unlock()
	return s, true
}

// Touch refreshes the session's activity timestamp without returning state.
func (r *Registry) Touch(sessionID string) bool {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	entry.session.LastActivity = r.now()
	entry.mu.Unlock()
	return true
}

// Remove deletes the session together with its queue. Idempotent: removing
// an absent session is a no-op.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return ok
}

// Queue returns the session's message queue, or false if absent.
func (r *Registry) Queue(sessionID string) (*Queue, bool) {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.queue, true
}

// countMessage bumps the session's lifetime enqueue counter.
func (r *Registry) countMessage(sessionID string) {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.session.MessageCount++
	entry.session.LastActivity = r.now()
	entry.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns a snapshot of live session IDs. The sweeper iterates this
// snapshot so it never holds the map lock while holding a session lock.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
