package config

import (
	"fmt"

	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Build converts the option description into a transaction option.
func (o OptionConfig) Build() (txorch.TransactionOption, error) {
	kind, err := txorch.ParseTransactionKind(o.Kind)
	if err != nil {
		return txorch.TransactionOption{}, err
	}

	var opt txorch.TransactionOption
	switch kind {
	case txorch.KindOCC:
		opt = txorch.OCC()
	case txorch.KindLTX:
		opt = txorch.LTX(o.WritePreserve...)
	case txorch.KindRTX:
		opt = txorch.RTX()
	default:
		opt = txorch.Unspecified()
	}
	if kind != txorch.KindLTX && len(o.WritePreserve) > 0 {
		return txorch.TransactionOption{}, fmt.Errorf("write_preserve is only valid for ltx, got %s", kind)
	}
	if o.Label != "" {
		opt = opt.WithLabel(o.Label)
	}
	return opt, nil
}

// BuildTimeouts returns the manager timeout overrides. Unset fields are zero.
func (c *ProjectConfig) BuildTimeouts() (tx.Timeouts, error) {
	var (
		t   tx.Timeouts
		err error
	)
	if t.Begin, err = parseDuration("timeouts.begin", c.Timeouts.Begin); err != nil {
		return tx.Timeouts{}, err
	}
	if t.Commit, err = parseDuration("timeouts.commit", c.Timeouts.Commit); err != nil {
		return tx.Timeouts{}, err
	}
	if t.Rollback, err = parseDuration("timeouts.rollback", c.Timeouts.Rollback); err != nil {
		return tx.Timeouts{}, err
	}
	if t.Close, err = parseDuration("timeouts.close", c.Timeouts.Close); err != nil {
		return tx.Timeouts{}, err
	}
	return t, nil
}

// BuildCommitKind parses the commit field.
func (c *ProjectConfig) BuildCommitKind() (txorch.CommitKind, error) {
	return txorch.ParseCommitKind(c.CommitKind)
}

// BuildClassifier returns the classifier for the policy, the default one when
// no codes are configured.
func (p PolicyConfig) BuildClassifier() *retry.DiagnosticClassifier {
	if len(p.RetryableCodes) == 0 && len(p.EscalateCodes) == 0 {
		return retry.NewDefaultClassifier()
	}
	return retry.NewDiagnosticClassifier(toCodes(p.RetryableCodes), toCodes(p.EscalateCodes))
}

// BuildPolicy constructs the configured policy.
func (c *ProjectConfig) BuildPolicy() (txorch.Policy, error) {
	p := c.Policy
	classifier := p.BuildClassifier()

	switch p.Type {
	case "", PolicySame:
		opt, err := p.Option.Build()
		if err != nil {
			return nil, fmt.Errorf("policy.option: %w", err)
		}
		maxAttempts := p.MaxAttempts
		if maxAttempts == 0 {
			maxAttempts = retry.Unlimited
		}
		return retry.NewSamePolicy(opt, retry.WithMaxAttempts(maxAttempts), retry.WithClassifier(classifier))

	case PolicySequence:
		opts := make([]txorch.TransactionOption, len(p.Options))
		for i, oc := range p.Options {
			opt, err := oc.Build()
			if err != nil {
				return nil, fmt.Errorf("policy.options[%d]: %w", i, err)
			}
			opts[i] = opt
		}
		return retry.NewSequencePolicy(opts, retry.WithClassifier(classifier))

	case PolicyBucket:
		buckets := make([]retry.Bucket, len(p.Buckets))
		for i, bc := range p.Buckets {
			opt, err := bc.Option.Build()
			if err != nil {
				return nil, fmt.Errorf("policy.buckets[%d].option: %w", i, err)
			}
			buckets[i] = retry.Bucket{Size: bc.Size, Option: opt}
		}
		return retry.NewBucketPolicy(buckets, retry.WithClassifier(classifier))

	case PolicyEscalation:
		occ, err := p.OCC.Build()
		if err != nil {
			return nil, fmt.Errorf("policy.occ: %w", err)
		}
		pessimistic, err := p.Pessimistic.Build()
		if err != nil {
			return nil, fmt.Errorf("policy.pessimistic: %w", err)
		}
		return retry.NewEscalationPolicy(occ, p.OCCSize, pessimistic, p.LTXSize, classifier)

	default:
		return nil, fmt.Errorf("%w: policy.type: unknown policy %q", txorch.ErrInvalidConfig, p.Type)
	}
}

// BuildBackoff returns the inter-attempt backoff, or nil when none is configured.
func (c *ProjectConfig) BuildBackoff() (txorch.BackoffStrategy, error) {
	if c.Backoff == nil {
		return nil, nil
	}
	b := c.Backoff

	var opts []retry.BackoffOption
	initial, err := parseDuration("backoff.initial_delay", b.InitialDelay)
	if err != nil {
		return nil, err
	}
	if initial > 0 {
		opts = append(opts, retry.WithInitialDelay(initial))
	}
	maxDelay, err := parseDuration("backoff.max_delay", b.MaxDelay)
	if err != nil {
		return nil, err
	}
	if maxDelay > 0 {
		opts = append(opts, retry.WithMaxDelay(maxDelay))
	}
	if b.Multiplier != 0 {
		if b.Multiplier < 1 {
			return nil, fmt.Errorf("backoff.multiplier: must be at least 1, got %v", b.Multiplier)
		}
		opts = append(opts, retry.WithMultiplier(b.Multiplier))
	}
	if b.Jitter != 0 {
		if b.Jitter < 0 || b.Jitter > 1 {
			return nil, fmt.Errorf("backoff.jitter: must be within [0, 1], got %v", b.Jitter)
		}
		opts = append(opts, retry.WithJitter(b.Jitter))
	}
	return retry.NewExponentialBackoff(retry.Unlimited, opts...), nil
}

func toCodes(codes []string) []txorch.DiagnosticCode {
	out := make([]txorch.DiagnosticCode, len(codes))
	for i, c := range codes {
		out[i] = txorch.DiagnosticCode(c)
	}
	return out
}
