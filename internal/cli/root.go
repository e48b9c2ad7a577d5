package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pgbulk",
	Short: "Parallel bulk loader for PostgreSQL",
	Long: `pgbulk loads a partitioned dataset into a PostgreSQL table with COPY,
one connection per partition, and replaces or appends to the target table.

In replace mode every partition is written to a staging table that takes the
target's place only after every partition has reported success. A failed load
leaves the target untouched.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or options
  11 - Database connection failed
  12 - Load incomplete (a partition failed or never reported success)
  13 - Staging table could not be promoted
  14 - Dataset could not be opened or read
  15 - Cleanup was not confirmed`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("config", "",
		"Path to the project file (default: ./"+defaultConfigFile+" when present)")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}
