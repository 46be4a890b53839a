// RelayClaw - Session-scoped message relay between chat platforms and Claude
// License: MIT
//
// Copyright (c) 2026 RelayClaw contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/auth"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/console"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/migrate"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/serve"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/session"
	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal/version"
)

func NewRelayclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s relayclaw - Session message relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "relayclaw",
		Short:   short,
		Example: "relayclaw serve",
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		session.NewSessionCommand(),
		console.NewConsoleCommand(),
		auth.NewAuthCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewRelayclawCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
