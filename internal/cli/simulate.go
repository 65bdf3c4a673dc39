package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/txorch/internal/memtransport"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Show how a policy reacts to a scripted series of failures",
	Long: `Simulate runs the execution loop against an in-memory database whose unit of
work fails according to --script, and prints every attempt and retry decision.
No database connection is made.

Script steps, one per attempt (attempts beyond the script succeed):
  <code>         the unit of work fails with this diagnostic code (e.g. 40001)
  commit:<code>  the unit of work succeeds but commit fails with this code
  ok             the attempt commits
  rollback       the unit of work rolls back by itself

Examples:
  # Two conflicts under the default policy
  txorch simulate --script 40001,40001

  # Lock conflict escalates to a long transaction
  txorch simulate --policy escalation --occ-size 2 --ltx-size 1 --write-preserve stock \
                  --script 40001,55P03`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var simulateFlags struct {
	script []string
	policyFlags
}

func resetSimulateFlags() {
	simulateFlags.script = nil
	simulateFlags.policyFlags = policyFlags{}
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringSliceVar(&simulateFlags.script, "script", nil,
		"Comma-separated outcome per attempt (diagnostic code, commit:<code>, ok or rollback)")
	addPolicyFlags(simulateCmd, &simulateFlags.policyFlags)
}

// simStep is the scripted outcome of one attempt.
type simStep struct {
	workCode   txorch.DiagnosticCode
	commitCode txorch.DiagnosticCode
	rollback   bool
}

func parseScript(script []string) ([]simStep, error) {
	steps := make([]simStep, len(script))
	for i, raw := range script {
		s := strings.TrimSpace(raw)
		switch {
		case s == "ok" || s == "":
		case s == "rollback":
			steps[i].rollback = true
		case strings.HasPrefix(s, "commit:"):
			steps[i].commitCode = txorch.DiagnosticCode(strings.TrimPrefix(s, "commit:"))
		case len(s) == 5:
			steps[i].workCode = txorch.DiagnosticCode(s)
		default:
			return nil, fmt.Errorf("%w: script step %d: %q is not a diagnostic code, commit:<code>, ok or rollback",
				txorch.ErrInvalidConfig, i, raw)
		}
	}
	return steps, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	steps, err := parseScript(simulateFlags.script)
	if err != nil {
		return err
	}

	cfg, err := loadProjectConfig(cmd)
	if err != nil {
		return err
	}
	applyPolicyFlags(cmd, &simulateFlags.policyFlags, &cfg.Policy)
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Backoff = nil

	logger, flush, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer flush()

	out := cmd.OutOrStdout()
	step := func(attempt int) simStep {
		if attempt < len(steps) {
			return steps[attempt]
		}
		return simStep{}
	}

	var current int
	transport := memtransport.New(memtransport.WithCommitFailure(func(rec memtransport.Record) error {
		if code := step(current).commitCode; code != "" {
			return &txorch.ServerError{Code: code, Message: "simulated commit failure"}
		}
		return nil
	}))

	prog := &progress{out: out}
	eng, err := newEngine(cfg, transport, logger, prog)
	if err != nil {
		return err
	}

	runErr := eng.manager.Run(commandContext(cmd), nil, func(ctx context.Context, t *tx.Transaction) error {
		current = t.Attempt()
		fmt.Fprintf(out, "attempt %d: %s\n", t.Attempt(), t.Option())
		if err := t.Open(ctx); err != nil {
			return err
		}
		s := step(t.Attempt())
		switch {
		case s.workCode != "":
			return &txorch.ServerError{Code: s.workCode, Message: "simulated failure"}
		case s.rollback:
			return t.Rollback(ctx)
		}
		return nil
	})
	if runErr != nil {
		return runErr
	}

	records := transport.Records()
	if len(records) > 0 && records[len(records)-1].Committed {
		fmt.Fprintf(out, "result: committed on attempt %d\n", prog.lastAttempt)
	} else {
		fmt.Fprintf(out, "result: rolled back by the unit of work on attempt %d\n", prog.lastAttempt)
	}
	return nil
}
