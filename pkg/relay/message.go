// Package relay implements the session-scoped message relay core: the
// session registry, per-session bounded message queues, channel bindings,
// the poll/ack protocol and the expiry sweeper.
//
// The relay bridges push-delivered platform events and a consumer that can
// only poll: inbound messages are buffered per session in an ordered,
// capacity- and TTL-bounded queue, and drained in batches on poll. Draining
// removes messages from the queue; acknowledgments are recorded for
// delivery tracking only and never affect queue state.
package relay

import (
	"fmt"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
)

// Message is one buffered inbound message, owned by exactly one session's
// queue. IDs are process-wide monotonic counters rendered fixed-width so
// lexical comparison matches numeric order and polls can use the last seen
// ID as a cursor.
type Message struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	ChannelID       string     `json:"channel_id"`
	Content         string     `json:"content"`
	Author          bus.Author `json:"author"`
	SourceID        string     `json:"source_id,omitempty"`
	SourceTimestamp time.Time  `json:"source_timestamp,omitzero"`
	ReceivedAt      time.Time  `json:"received_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// FormatMessageID renders a counter value as a fixed-width, lexically
// ordered message ID.
func FormatMessageID(n uint64) string {
	return fmt.Sprintf("%020d", n)
}
