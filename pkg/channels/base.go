// Package channels connects chat platforms to the relay's event bus. Each
// channel converts platform events into inbound relay events and delivers
// outbound notices (session hints, command replies) back to the platform.
package channels

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, n bus.OutboundNotice) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// SessionControl is the slice of the relay the channels may drive directly:
// session lifecycle initiated by platform commands (/claude start, /claude
// stop). Message flow itself always goes through the bus.
type SessionControl interface {
	StartSession(sessionID, channelID string) (sessionID2 string, created bool)
	StopSession(channelID string)
}

type BaseChannel struct {
	bus       *bus.EventBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, eventBus *bus.EventBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       eventBus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed reports whether a sender passes the channel's allowlist. An
// empty allowlist admits everyone. Entries match either the platform user
// ID or the username, with a leading "@" tolerated.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if senderID == allowed || senderID == strings.TrimPrefix(allowed, "@") {
			return true
		}
	}
	return false
}

// HandleMessage publishes a platform message onto the bus after the
// allowlist check. Filtered senders are dropped silently.
func (c *BaseChannel) HandleMessage(channelID string, author bus.Author, content, sourceID string, sourceTime time.Time) {
	if !c.IsAllowed(author.ID) && !c.IsAllowed(author.Username) {
		return
	}

	c.bus.PublishInbound(context.TODO(), bus.InboundEvent{
		Channel:         c.name,
		ChannelID:       channelID,
		Author:          author,
		Content:         content,
		SourceID:        sourceID,
		SourceTimestamp: sourceTime,
	})
}
