package session

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/client"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

func NewSessionCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage relay sessions on a running server",
		Example: `  relayclaw session start claude-dev --channel 1234567890
  relayclaw session stop claude-dev
  relayclaw session heartbeat claude-dev
  relayclaw session clear claude-dev`,
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Relay server URL (default: from config)")

	newClient := func() (*client.Client, error) {
		cfg, err := internal.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		base := serverURL
		if base == "" {
			base = "http://" + cfg.Relay.Addr()
		}
		return client.New(base, cfg.Relay.APIToken), nil
	}

	var channelID string
	startCmd := &cobra.Command{
		Use:   "start [session-id]",
		Short: "Create or refresh a session, optionally binding a channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sessionID := relay.NewSessionID()
			if len(args) == 1 {
				sessionID = args[0]
			}

			cl, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			info, err := cl.StartSession(ctx, sessionID, channelID)
			if err != nil {
				return err
			}
			if info.Created {
				fmt.Printf("✓ Session created: %s\n", info.SessionID)
			} else {
				fmt.Printf("✓ Session refreshed: %s\n", info.SessionID)
			}
			if channelID != "" {
				fmt.Printf("  bound channel: %s\n", channelID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&channelID, "channel", "", "Channel ID to bind to the session")

	stopCmd := &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop a session and unbind its channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cl, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := cl.StopSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Session stopped: %s\n", args[0])
			return nil
		},
	}

	heartbeatCmd := &cobra.Command{
		Use:   "heartbeat <session-id>",
		Short: "Keep a session alive without polling",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cl, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := cl.Heartbeat(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Heartbeat sent: %s\n", args[0])
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Drop all queued messages for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cl, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cleared, err := cl.ClearReplies(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✓ Cleared %d queued messages for %s\n", cleared, args[0])
			return nil
		},
	}

	cmd.AddCommand(startCmd, stopCmd, heartbeatCmd, clearCmd)
	return cmd
}
