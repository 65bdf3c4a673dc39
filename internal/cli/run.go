package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/vvka-141/txorch/internal/db"
	"github.com/vvka-141/txorch/internal/pgtransport"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run SQL statements as one retried unit of work",
	Long: `Run executes the given statements in order inside one transaction and commits
it. When the database reports a retryable conflict the whole unit of work is
rolled back and run again under the configured policy.

The connection string comes from --url, connection.url in txorch.yaml, or
$TXORCH_DATABASE_URL (a .env file in the working directory is loaded).

Examples:
  # Transfer under the default policy (OCC, 3 attempts)
  txorch run --sql "UPDATE account SET balance = balance - 10 WHERE id = 1" \
             --sql "UPDATE account SET balance = balance + 10 WHERE id = 2"

  # Escalate to a long transaction reserving the account table
  txorch run --policy escalation --occ-size 2 --ltx-size 1 --write-preserve account \
             --sql "UPDATE account SET balance = 0 WHERE id = 3"

  # Read inside the transaction and print the rows
  txorch run --query "SELECT id, balance FROM account ORDER BY id"`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runFlags struct {
	url         string
	sql         []string
	query       string
	timeout     time.Duration
	metricsFile string
	policyFlags
}

func resetRunFlags() {
	runFlags.url = ""
	runFlags.sql = nil
	runFlags.query = ""
	runFlags.timeout = 5 * time.Minute
	runFlags.metricsFile = ""
	runFlags.policyFlags = policyFlags{}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.url, "url", "",
		"PostgreSQL connection string (overrides config and $"+txorch.DatabaseURLEnv+")")
	runCmd.Flags().StringArrayVar(&runFlags.sql, "sql", nil,
		"Statement to execute; repeat for several statements")
	runCmd.Flags().StringVar(&runFlags.query, "query", "",
		"Query executed after the statements; its rows are printed")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 5*time.Minute,
		"Overall time budget for all attempts")
	runCmd.Flags().StringVar(&runFlags.metricsFile, "metrics-file", "",
		"Write Prometheus metrics to this file when done")
	addPolicyFlags(runCmd, &runFlags.policyFlags)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(runFlags.sql) == 0 && runFlags.query == "" {
		return fmt.Errorf("%w: at least one --sql or --query is required", txorch.ErrInvalidConfig)
	}

	cfg, err := loadProjectConfig(cmd)
	if err != nil {
		return err
	}
	applyPolicyFlags(cmd, &runFlags.policyFlags, &cfg.Policy)
	if runFlags.url != "" {
		cfg.Connection.URL = runFlags.url
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, flush, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer flush()

	ctx, cancel := context.WithTimeout(commandContext(cmd), runFlags.timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL(), db.PoolOptions{
		MaxConns:        cfg.Connection.MaxConns,
		ConnectAttempts: cfg.Connection.ConnectAttempts,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	transport := pgtransport.New(pool, pgtransport.WithLogger(logger))
	prog := &progress{out: cmd.ErrOrStderr()}
	eng, err := newEngine(cfg, transport, logger, prog)
	if err != nil {
		return err
	}

	var rows [][]any
	runErr := eng.manager.Run(ctx, nil, func(ctx context.Context, t *tx.Transaction) error {
		rows = nil
		for _, sql := range runFlags.sql {
			if _, err := transport.Exec(ctx, t, sql); err != nil {
				return err
			}
		}
		if runFlags.query == "" {
			return nil
		}
		var err error
		rows, err = pgtransport.Collect(ctx, transport, t, runFlags.query, rowValues)
		return err
	})

	if err := eng.writeMetrics(runFlags.metricsFile); err != nil {
		logger.Error("failed to write metrics: %v", err)
	}
	if runErr != nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	for _, row := range rows {
		fmt.Fprintln(out, formatRow(row))
	}
	fmt.Fprintf(out, "committed after %d attempt(s)\n", prog.lastAttempt+1)
	return nil
}

func rowValues(row pgx.CollectableRow) ([]any, error) {
	return row.Values()
}

func formatRow(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\t")
}
