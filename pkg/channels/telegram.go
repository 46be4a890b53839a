package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/config"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

// TelegramChannel bridges a Telegram bot to the relay over long polling.
// Session lifecycle is driven by the /claude_start and /claude_stop
// commands since Telegram has no slash-command subcommands.
type TelegramChannel struct {
	*BaseChannel
	bot     *telego.Bot
	control SessionControl

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegramChannel(cfg config.TelegramConfig, eventBus *bus.EventBus, control SessionControl) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	bot, err := telego.NewBot(cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", eventBus, cfg.AllowFrom),
		bot:         bot,
		control:     control,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("starting telegram long polling: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for update := range updates {
			c.handleUpdate(pollCtx, update)
		}
	}()

	c.SetRunning(true)
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, n bus.OutboundNotice) error {
	chatID, err := strconv.ParseInt(n.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", n.ChannelID, err)
	}

	_, err = c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   n.Content,
	})
	if err != nil {
		return fmt.Errorf("sending to telegram chat %d: %w", chatID, err)
	}
	return nil
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID := strconv.FormatInt(msg.From.ID, 10)

	// Command names may carry a @botname suffix in group chats.
	cmd := text
	if idx := strings.IndexByte(cmd, '@'); idx > 0 {
		cmd = cmd[:idx]
	}

	switch cmd {
	case "/claude_start":
		if !c.IsAllowed(senderID) && !c.IsAllowed(msg.From.Username) {
			return
		}
		sessionID, created := c.control.StartSession("", chatID)
		reply := fmt.Sprintf("Relay session started: %s", sessionID)
		if !created {
			reply = fmt.Sprintf("This chat is already bound to session %s", sessionID)
		}
		c.reply(ctx, msg.Chat.ID, reply)
		return
	case "/claude_stop":
		if !c.IsAllowed(senderID) && !c.IsAllowed(msg.From.Username) {
			return
		}
		c.control.StopSession(chatID)
		c.reply(ctx, msg.Chat.ID, "Relay session stopped.")
		return
	}

	c.HandleMessage(chatID, bus.Author{
		ID:       senderID,
		Username: msg.From.Username,
		Bot:      msg.From.IsBot,
	}, msg.Text, strconv.Itoa(msg.MessageID), time.Unix(msg.Date, 0))
}

func (c *TelegramChannel) reply(ctx context.Context, chatID int64, text string) {
	_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	})
	if err != nil {
		logger.WarnCF("telegram", "Command reply failed", map[string]any{
			"error": err.Error(),
		})
	}
}
