package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/txorch/internal/config"
	"github.com/vvka-141/txorch/internal/logging"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// loadProjectConfig loads .env, then the --config file, then ./txorch.yaml,
// falling back to defaults when no file exists.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFile(path)
	}

	cfg, err := config.Load(".")
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}

// newLogger builds the logger selected by --log-format or the config file.
func newLogger(cmd *cobra.Command, cfg *config.ProjectConfig) (txorch.Logger, func(), error) {
	verbose := getVerboseFlag(cmd) || cfg.Log.Verbose

	format := cfg.Log.Format
	if cmd.Flags().Changed("log-format") {
		format, _ = cmd.Flags().GetString("log-format")
	}

	switch format {
	case "", logging.FormatConsole:
		return logging.NewConsoleLoggerTo(cmd.ErrOrStderr(), verbose), func() {}, nil
	case logging.FormatJSON:
		zl, err := logging.NewZapLogger(logging.FormatJSON, verbose)
		if err != nil {
			return nil, nil, err
		}
		return zl, func() { _ = zl.Sync() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown log format %q", txorch.ErrInvalidConfig, format)
	}
}

// policyFlags override the policy section of the config file.
type policyFlags struct {
	policy        string
	maxAttempts   int
	sequence      []string
	occSize       int
	ltxSize       int
	writePreserve []string
	label         string
}

func addPolicyFlags(cmd *cobra.Command, f *policyFlags) {
	cmd.Flags().StringVar(&f.policy, "policy", "",
		"Retry policy: same, sequence, bucket or escalation (overrides config)")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", txorch.DefaultMaxAttempts,
		"Attempt limit of the same policy")
	cmd.Flags().StringSliceVar(&f.sequence, "sequence", nil,
		"Transaction kinds of the sequence policy, one per attempt (e.g. occ,occ,ltx)")
	cmd.Flags().IntVar(&f.occSize, "occ-size", 1,
		"Optimistic attempts of the escalation policy")
	cmd.Flags().IntVar(&f.ltxSize, "ltx-size", 1,
		"Pessimistic attempts of the escalation policy")
	cmd.Flags().StringSliceVar(&f.writePreserve, "write-preserve", nil,
		"Tables reserved by long transactions")
	cmd.Flags().StringVar(&f.label, "label", "",
		"Transaction label reported to the server")
}

// applyPolicyFlags writes explicitly set flags over cfg.Policy.
func applyPolicyFlags(cmd *cobra.Command, f *policyFlags, p *config.PolicyConfig) {
	changed := cmd.Flags().Changed

	if changed("policy") {
		p.Type = f.policy
		switch f.policy {
		case config.PolicySequence:
			p.Options = nil
		case config.PolicyEscalation:
			p.OCC = config.OptionConfig{Kind: "occ"}
			p.Pessimistic = config.OptionConfig{Kind: "ltx"}
			p.OCCSize, p.LTXSize = f.occSize, f.ltxSize
		}
	}
	if changed("max-attempts") {
		p.MaxAttempts = f.maxAttempts
	}
	if changed("sequence") {
		p.Options = make([]config.OptionConfig, len(f.sequence))
		for i, kind := range f.sequence {
			p.Options[i] = config.OptionConfig{Kind: kind}
		}
	}
	if changed("occ-size") {
		p.OCCSize = f.occSize
	}
	if changed("ltx-size") {
		p.LTXSize = f.ltxSize
	}
	if changed("write-preserve") {
		p.Pessimistic.WritePreserve = f.writePreserve
		for i := range p.Options {
			if p.Options[i].Kind == "ltx" {
				p.Options[i].WritePreserve = f.writePreserve
			}
		}
		if p.Option.Kind == "ltx" {
			p.Option.WritePreserve = f.writePreserve
		}
	}
	if changed("label") {
		p.Option.Label = f.label
		p.OCC.Label = f.label
		p.Pessimistic.Label = f.label
		for i := range p.Options {
			p.Options[i].Label = f.label
		}
	}
}

// commandContext returns the command's context, or Background when the command
// runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
