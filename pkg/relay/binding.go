package relay

import "sync"

// BindingTable maps a platform channel ID to the session currently bound to
// it. One active session per channel; binding again overwrites (last writer
// wins). A binding that points at a session the registry no longer knows is
// treated by the broker as no binding at all.
type BindingTable struct {
	mu       sync.RWMutex
	bindings map[string]string // channelID -> sessionID
}

func NewBindingTable() *BindingTable {
	return &BindingTable{bindings: make(map[string]string)}
}

func (t *BindingTable) Bind(channelID, sessionID string) {
	t.mu.Lock()
	t.bindings[channelID] = sessionID
	t.mu.Unlock()
}

func (t *BindingTable) Resolve(channelID string) (string, bool) {
	t.mu.RLock()
	sessionID, ok := t.bindings[channelID]
	t.mu.RUnlock()
	return sessionID, ok
}

func (t *BindingTable) Unbind(channelID string) {
	t.mu.Lock()
	delete(t.bindings, channelID)
	t.mu.Unlock()
}

// UnbindSession removes every channel binding that references the session
// and returns the channel IDs that were unbound. The sweeper calls this
// when it removes a session so bindings cannot dangle indefinitely.
func (t *BindingTable) UnbindSession(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var channels []string
	for ch, sid := range t.bindings {
		if sid == sessionID {
			channels = append(channels, ch)
			delete(t.bindings, ch)
		}
	}
	return channels
}

// Len returns the number of active bindings.
func (t *BindingTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}
