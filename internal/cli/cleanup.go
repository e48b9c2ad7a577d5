package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vvka-141/pgbulk/internal/db"
	"github.com/vvka-141/pgbulk/internal/db/manager"
	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/internal/services"
	"github.com/vvka-141/pgbulk/internal/ui"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [table]",
	Short: "Drop staging tables left behind by interrupted loads",
	Long: `Cleanup finds staging tables of a target table (the target's name followed
by 32 hex characters, in the target's schema) and drops them.

A staging table is only left behind when the process coordinating a load is
killed before it can promote or drop it. Do not run cleanup while a load into
the same table is in progress.

Before dropping, cleanup asks you to type the target table name. With --force
it shows a 5 second countdown instead.

Examples:
  # Show what would be dropped
  pgbulk cleanup analytics.orders --dry-run

  # Drop leftovers of the table named in pgbulk.yaml without prompting
  pgbulk cleanup --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

type cleanupFlagValues struct {
	conn   connectionFlags
	dryRun bool
	force  bool
}

var cleanupFlags cleanupFlagValues

func init() {
	rootCmd.AddCommand(cleanupCmd)
	addConnectionFlags(cleanupCmd, &cleanupFlags.conn)
	cleanupCmd.Flags().BoolVar(&cleanupFlags.dryRun, "dry-run", false, "List staging tables without dropping them")
	cleanupCmd.Flags().BoolVar(&cleanupFlags.force, "force", false, "Drop after a countdown instead of asking for confirmation")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	verbose := getVerboseFlag(cmd)

	projectCfg, err := loadProjectConfig(cmd)
	if err != nil {
		return err
	}

	table := ""
	if projectCfg != nil {
		table = projectCfg.Load.Table
	}
	if len(args) > 0 {
		table = args[0]
	}
	if table == "" {
		return fmt.Errorf("target table is required: pgbulk cleanup <table>: %w", pgbulk.ErrInvalidConfig)
	}

	connConfig, err := resolveConnection(cleanupFlags.conn, projectCfg)
	if err != nil {
		return err
	}
	if verbose {
		logConnectionVerbose(connConfig)
	}
	if connConfig.AppName == "" {
		connConfig.AppName = "pgbulk"
	}

	var approver pgbulk.Approver
	if cleanupFlags.force {
		approver = ui.NewForcedApprover(verbose)
	} else {
		approver = ui.NewInteractiveApprover(verbose)
	}

	svc := services.NewLoadService(db.NewConnector, manager.New(), logging.NewConsoleLogger(verbose), nil)
	tables, err := svc.Cleanup(context.Background(), connConfig, services.CleanupConfig{
		Table:    table,
		DryRun:   cleanupFlags.dryRun,
		Approver: approver,
	})
	for _, t := range tables {
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
	}
	if err != nil {
		if len(tables) > 0 && !errors.Is(err, pgbulk.ErrApprovalDenied) {
			fmt.Fprintf(os.Stderr, "Some staging tables could not be dropped\n")
		}
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}
