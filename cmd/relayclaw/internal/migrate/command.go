package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayclaw/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	var opts migrate.FromEnvOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate configuration from legacy formats",
		Example: `  relayclaw migrate env
  relayclaw migrate env --dry-run
  relayclaw migrate env --env /path/to/.env --force`,
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Convert a legacy .env deployment to config.json",
		Args:  cobra.NoArgs,
		Example: `  relayclaw migrate env
  relayclaw migrate env --dry-run
  relayclaw migrate env --env ./reply-service/.env --output ~/.relayclaw/config.json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			result, err := migrate.RunFromEnv(opts)
			if err != nil {
				return err
			}
			printSummary(result, opts.DryRun)
			return nil
		},
	}

	envCmd.Flags().StringVar(&opts.EnvPath, "env", "",
		".env input file path (default: ./.env)")
	envCmd.Flags().StringVar(&opts.OutputPath, "output", "",
		"JSON output file path (default: ~/.relayclaw/config.json)")
	envCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be migrated without writing")
	envCmd.Flags().BoolVar(&opts.Force, "force", false,
		"Overwrite an existing config file")

	cmd.AddCommand(envCmd)
	return cmd
}

func printSummary(result *migrate.FromEnvResult, dryRun bool) {
	if dryRun {
		fmt.Println("Dry run, nothing written. Would apply:")
	} else {
		fmt.Printf("Config written to %s\n", result.OutputPath)
	}
	for _, a := range result.Applied {
		fmt.Printf("  %s\n", a)
	}
	if len(result.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
}
