package console

import (
	"github.com/spf13/cobra"
)

func NewConsoleCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"c"},
		Short:   "Interactive console against a running relay",
		Args:    cobra.NoArgs,
		Example: `  relayclaw console
  relayclaw console --server http://127.0.0.1:8787`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Relay server URL (default: from config)")

	return cmd
}
