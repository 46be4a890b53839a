package auth

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/pkg/auth"
	"github.com/tinyland-inc/relayclaw/pkg/config"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the consumer API token",
		Example: `  relayclaw auth set
  relayclaw auth generate
  relayclaw auth show`,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Paste and store an API token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			token, err := auth.PasteToken(os.Stdin)
			if err != nil {
				return err
			}
			return saveToken(token)
		},
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store a fresh API token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			if err := saveToken(token); err != nil {
				return err
			}
			fmt.Printf("Token (give this to the consumer): %s\n", token)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the configured token, redacted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if cfg.Relay.APIToken == "" {
				fmt.Println("No API token configured")
				return nil
			}
			fmt.Printf("API token: %s\n", auth.Redact(cfg.Relay.APIToken))
			return nil
		},
	}

	cmd.AddCommand(setCmd, generateCmd, showCmd)
	return cmd
}

func saveToken(token string) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	cfg.Relay.APIToken = token

	path := internal.GetConfigPath()
	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("✓ API token saved to %s\n", path)
	return nil
}
