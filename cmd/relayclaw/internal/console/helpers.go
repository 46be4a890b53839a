package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/client"
)

const consoleHelp = `Commands:
  health                          server status
  start [session-id] [channel]    create or refresh a session
  stop <session-id>               stop a session
  poll <session-id> [since]       drain queued messages
  ack <message-id> <session-id>   acknowledge a delivery
  send <channel-id> <text...>     push a message through the webhook
  clear <session-id>              drop a session's queue
  help                            show this help
  exit                            leave the console`

func consoleCmd(serverURL string) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	base := serverURL
	if base == "" {
		base = "http://" + cfg.Relay.Addr()
	}
	cl := client.New(base, cfg.Relay.APIToken)

	fmt.Printf("%s Relay console, connected to %s (Ctrl+C to exit)\n\n", internal.Logo, base)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s > ", internal.Logo),
		HistoryFile:     filepath.Join(os.TempDir(), ".relayclaw_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := runConsoleCommand(cl, input); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func runConsoleCommand(cl *client.Client, input string) error {
	fields := strings.Fields(input)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch fields[0] {
	case "help":
		fmt.Println(consoleHelp)
		return nil

	case "health":
		h, err := cl.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("status=%s sessions=%d uptime=%s\n", h.Status, h.Sessions, h.Uptime)
		return nil

	case "start":
		sessionID, channelID := "", ""
		if len(fields) > 1 {
			sessionID = fields[1]
		}
		if len(fields) > 2 {
			channelID = fields[2]
		}
		if sessionID == "" {
			return errors.New("usage: start <session-id> [channel-id]")
		}
		info, err := cl.StartSession(ctx, sessionID, channelID)
		if err != nil {
			return err
		}
		fmt.Printf("session %s (created=%v)\n", info.SessionID, info.Created)
		return nil

	case "stop":
		if len(fields) != 2 {
			return errors.New("usage: stop <session-id>")
		}
		if err := cl.StopSession(ctx, fields[1]); err != nil {
			return err
		}
		fmt.Println("stopped")
		return nil

	case "poll":
		if len(fields) < 2 {
			return errors.New("usage: poll <session-id> [since]")
		}
		since := ""
		if len(fields) > 2 {
			since = fields[2]
		}
		res, err := cl.Poll(ctx, fields[1], 0, since)
		if err != nil {
			return err
		}
		if len(res.Messages) == 0 {
			fmt.Println("(empty)")
			return nil
		}
		for _, m := range res.Messages {
			fmt.Printf("%s [%s] %s: %s\n", m.ID, m.ChannelID, m.Author.Username, m.Content)
		}
		if res.HasMore {
			fmt.Println("(more messages queued)")
		}
		return nil

	case "ack":
		if len(fields) != 3 {
			return errors.New("usage: ack <message-id> <session-id>")
		}
		if err := cl.Ack(ctx, fields[1], fields[2], "delivered"); err != nil {
			return err
		}
		fmt.Println("acked")
		return nil

	case "send":
		if len(fields) < 3 {
			return errors.New("usage: send <channel-id> <text...>")
		}
		content := strings.Join(fields[2:], " ")
		if err := cl.SendWebhook(ctx, fields[1], "console", content); err != nil {
			return err
		}
		fmt.Println("sent")
		return nil

	case "clear":
		if len(fields) != 2 {
			return errors.New("usage: clear <session-id>")
		}
		n, err := cl.ClearReplies(ctx, fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d messages\n", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
}
