package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// SlackChannel bridges a Slack app to the relay over Socket Mode, so no
// public HTTP endpoint is needed on the Slack side. The "/claude" slash
// command drives session lifecycle.
type SlackChannel struct {
	*BaseChannel
	api     *slack.Client
	socket  *socketmode.Client
	control SessionControl

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSlackChannel(cfg config.SlackConfig, eventBus *bus.EventBus, control SessionControl) (*SlackChannel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, errors.New("slack bot token and app token are required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, errors.New("slack app token must start with xapp-")
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", eventBus, cfg.AllowFrom),
		api:         api,
		socket:      socketmode.New(api),
		control:     control,
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := c.socket.RunContext(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCF("slack", "Socket mode terminated", map[string]any{
				"error": err.Error(),
			})
		}
	}()
	go func() {
		defer c.wg.Done()
		c.eventLoop(runCtx)
	}()

	c.SetRunning(true)
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, n bus.OutboundNotice) error {
	_, _, err := c.api.PostMessageContext(ctx, n.ChannelID, slack.MsgOptionText(n.Content, false))
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", n.ChannelID, err)
	}
	return nil
}

func (c *SlackChannel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			c.handleEvent(ctx, evt)
		}
	}
}

func (c *SlackChannel) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			c.socket.Ack(*evt.Request)
		}
		if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			c.handleMessageEvent(ev)
		}

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		reply := c.handleSlashCommand(cmd)
		if evt.Request != nil {
			c.socket.Ack(*evt.Request, map[string]any{"text": reply})
		}
	}
}

func (c *SlackChannel) handleMessageEvent(ev *slackevents.MessageEvent) {
	// Bot posts and edits/joins carry a BotID or SubType.
	if ev.BotID != "" || ev.SubType != "" || ev.User == "" {
		return
	}
	if strings.TrimSpace(ev.Text) == "" {
		return
	}

	c.HandleMessage(ev.Channel, bus.Author{
		ID:       ev.User,
		Username: ev.Username,
		Bot:      false,
	}, ev.Text, ev.TimeStamp, slackEventTime(ev.TimeStamp))
}

func (c *SlackChannel) handleSlashCommand(cmd slack.SlashCommand) string {
	if cmd.Command != "/claude" {
		return ""
	}
	if !c.IsAllowed(cmd.UserID) && !c.IsAllowed(cmd.UserName) {
		return "You are not allowed to manage relay sessions."
	}

	switch strings.TrimSpace(cmd.Text) {
	case "start":
		sessionID, created := c.control.StartSession("", cmd.ChannelID)
		if created {
			return fmt.Sprintf("Relay session started: %s. Messages in this channel now reach Claude.", sessionID)
		}
		return fmt.Sprintf("This channel is already bound to session %s.", sessionID)
	case "stop":
		c.control.StopSession(cmd.ChannelID)
		return "Relay session stopped."
	default:
		return "Usage: /claude start | /claude stop"
	}
}

// slackEventTime parses Slack's "seconds.fraction" event timestamp. Falls
// back to the current time on malformed input.
func slackEventTime(ts string) time.Time {
	secs := ts
	if idx := strings.IndexByte(ts, '.'); idx >= 0 {
		secs = ts[:idx]
	}
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(n, 0)
}
