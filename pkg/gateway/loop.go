// Package gateway runs the pump between the event bus and the relay
// broker. Inbound platform events are ingested into session queues;
// outbound notices flow back to the channel manager for delivery.
package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

// NoticeSender delivers an outbound notice to its platform. Satisfied by
// channels.Manager.
type NoticeSender interface {
	Send(ctx context.Context, n bus.OutboundNotice)
}

const noSessionHint = "No active Claude session in this channel. Start one with /claude start."

type Loop struct {
	bus    *bus.EventBus
	broker *relay.Broker
	sender NoticeSender

	wg sync.WaitGroup
}

func NewLoop(eventBus *bus.EventBus, broker *relay.Broker, sender NoticeSender) *Loop {
	return &Loop{
		bus:    eventBus,
		broker: broker,
		sender: sender,
	}
}

// Run pumps both directions until the context is cancelled or the bus is
// closed. It blocks; callers usually run it in a goroutine.
func (l *Loop) Run(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.noticeLoop(ctx)
	}()

	for {
		ev, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		l.ingest(ctx, ev)
	}
	l.wg.Wait()
}

func (l *Loop) ingest(ctx context.Context, ev bus.InboundEvent) {
	res, err := l.broker.Ingest(ev)
	if err != nil {
		if errors.Is(err, relay.ErrNoActiveSession) {
			if pubErr := l.bus.PublishNotice(ctx, bus.OutboundNotice{
				Channel:   ev.Channel,
				ChannelID: ev.ChannelID,
				Content:   noSessionHint,
			}); pubErr != nil {
				logger.DebugCF("gateway", "Session hint dropped", map[string]any{
					"channel_id": ev.ChannelID,
				})
			}
			return
		}
		logger.ErrorCF("gateway", "Ingest failed", map[string]any{
			"channel_id": ev.ChannelID,
			"error":      err.Error(),
		})
		return
	}
	if res.Ignored {
		return
	}

	logger.DebugCF("gateway", "Message queued", map[string]any{
		"session_id":   res.SessionID,
		"message_id":   res.MessageID,
		"queue_length": res.QueueLength,
	})
}

func (l *Loop) noticeLoop(ctx context.Context) {
	for {
		n, ok := l.bus.ConsumeNotice(ctx)
		if !ok {
			return
		}
		l.sender.Send(ctx, n)
	}
}

// Control adapts the broker to the session commands channels issue. The
// stop side resolves the channel's binding first so platforms never need
// to know session ids.
type Control struct {
	broker *relay.Broker
}

func NewControl(broker *relay.Broker) *Control {
	return &Control{broker: broker}
}

func (c *Control) StartSession(sessionID, channelID string) (string, bool) {
	if sessionID == "" {
		if existing, ok := c.broker.Bindings().Resolve(channelID); ok {
			if _, live := c.broker.Registry().Get(existing); live {
				return existing, false
			}
		}
	}
	session, created := c.broker.StartSession(sessionID, channelID)
	return session.ID, created
}

func (c *Control) StopSession(channelID string) {
	sessionID, ok := c.broker.Bindings().Resolve(channelID)
	if !ok {
		return
	}
	c.broker.StopSession(sessionID)
}
