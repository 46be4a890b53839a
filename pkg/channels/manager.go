package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// Manager owns the enabled platform channels and fans outbound notices to
// the right one.
type Manager struct {
	channels map[string]Channel
}

func NewManager(cfg *config.Config, eventBus *bus.EventBus, control SessionControl) (*Manager, error) {
	m := &Manager{channels: make(map[string]Channel)}

	if cfg.Channels.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Channels.Discord, eventBus, control)
		if err != nil {
			return nil, fmt.Errorf("discord channel: %w", err)
		}
		m.channels["discord"] = ch
	}

	if cfg.Channels.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Channels.Telegram, eventBus, control)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		m.channels["telegram"] = ch
	}

	if cfg.Channels.Slack.Enabled {
		ch, err := NewSlackChannel(cfg.Channels.Slack, eventBus, control)
		if err != nil {
			return nil, fmt.Errorf("slack channel: %w", err)
		}
		m.channels["slack"] = ch
	}

	return m, nil
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetEnabledChannels() string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Channel failed to start", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			return fmt.Errorf("starting %s: %w", name, err)
		}
		logger.InfoC("channels", name+" channel started")
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel stop error", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// Send routes an outbound notice to the channel it names. Unknown channels
// are dropped with a log line; notice delivery is best-effort.
func (m *Manager) Send(ctx context.Context, n bus.OutboundNotice) {
	ch, ok := m.channels[n.Channel]
	if !ok {
		logger.DebugCF("channels", "Notice for unknown channel dropped", map[string]any{
			"channel": n.Channel,
		})
		return
	}
	if err := ch.Send(ctx, n); err != nil {
		logger.WarnCF("channels", "Notice delivery failed", map[string]any{
			"channel": n.Channel,
			"error":   err.Error(),
		})
	}
}
