package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// DiscordChannel bridges a Discord bot to the relay. Regular guild messages
// in a bound channel become inbound relay events; the "/claude" slash
// command drives session lifecycle.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	control SessionControl
}

func NewDiscordChannel(cfg config.DiscordConfig, eventBus *bus.EventBus, control SessionControl) (*DiscordChannel, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", eventBus, cfg.AllowFrom),
		session:     session,
		control:     control,
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onInteractionCreate)

	return c, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	if err := c.registerCommands(); err != nil {
		logger.WarnCF("discord", "Slash command registration failed", map[string]any{
			"error": err.Error(),
		})
	}

	c.SetRunning(true)
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

func (c *DiscordChannel) Send(ctx context.Context, n bus.OutboundNotice) error {
	_, err := c.session.ChannelMessageSend(n.ChannelID, n.Content)
	if err != nil {
		return fmt.Errorf("sending to discord channel %s: %w", n.ChannelID, err)
	}
	return nil
}

func (c *DiscordChannel) registerCommands() error {
	_, err := c.session.ApplicationCommandCreate(c.session.State.User.ID, "", &discordgo.ApplicationCommand{
		Name:        "claude",
		Description: "Manage the Claude relay session for this channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start relaying this channel's messages to Claude",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop the active relay session",
			},
		},
	})
	return err
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}

	sourceTime := m.Timestamp
	if sourceTime.IsZero() {
		sourceTime = time.Now()
	}

	c.HandleMessage(m.ChannelID, bus.Author{
		ID:       m.Author.ID,
		Username: m.Author.Username,
		Bot:      m.Author.Bot,
	}, m.Content, m.ID, sourceTime)
}

func (c *DiscordChannel) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "claude" || len(data.Options) == 0 {
		return
	}

	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	if !c.IsAllowed(user.ID) && !c.IsAllowed(user.Username) {
		c.respond(s, i, "You are not allowed to manage relay sessions.")
		return
	}

	var reply string
	switch data.Options[0].Name {
	case "start":
		sessionID, created := c.control.StartSession("", i.ChannelID)
		if created {
			reply = fmt.Sprintf("Relay session started: `%s`. Messages in this channel now reach Claude.", sessionID)
		} else {
			reply = fmt.Sprintf("This channel is already bound to session `%s`.", sessionID)
		}
	case "stop":
		c.control.StopSession(i.ChannelID)
		reply = "Relay session stopped. Messages in this channel are no longer forwarded."
	default:
		reply = "Unknown subcommand. Use `/claude start` or `/claude stop`."
	}

	c.respond(s, i, reply)
}

func (c *DiscordChannel) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		logger.WarnCF("discord", "Interaction response failed", map[string]any{
			"error": err.Error(),
		})
	}
}
