package bus

import "time"

// Author identifies the sender of an inbound event.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// InboundEvent is a platform message on its way into the relay.
type InboundEvent struct {
	Channel         string    `json:"channel"` // platform name: discord | telegram | slack | webhook
	ChannelID       string    `json:"channel_id"`
	Author          Author    `json:"author"`
	Content         string    `json:"content"`
	SourceID        string    `json:"source_id,omitempty"` // platform message ID
	SourceTimestamp time.Time `json:"source_timestamp,omitzero"`
}

// OutboundNotice is a short status message the relay sends back to a
// platform channel (session hints, command replies). It is not part of
// message delivery; the assistant consumes messages by polling.
type OutboundNotice struct {
	Channel   string `json:"channel"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}
