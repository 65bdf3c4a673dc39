package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "txorch",
	Short: "Run units of work in retried database transactions",
	Long: `txorch runs SQL units of work inside transactions and retries them under a
configurable policy when the database reports a transient conflict.

Policies:
  same        one transaction option for every attempt
  sequence    a fixed list of options, one per attempt
  bucket      consecutive attempt ranges mapped to options
  escalation  optimistic attempts first, then pessimistic attempts

Exit Codes:
  0  - Success (committed, or rolled back by the unit of work)
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or policy
  11 - Database connection failed
  12 - Retry budget exhausted
  13 - Non-retryable server failure
  14 - A transaction phase timed out`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the project config file (default ./txorch.yaml if present)")
	rootCmd.PersistentFlags().String("log-format", "", `Log output format: "console" or "json" (default from config, else console)`)
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
