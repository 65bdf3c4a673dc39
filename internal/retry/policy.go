package retry

import (
	"fmt"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// Unlimited disables the attempt limit of a SamePolicy.
const Unlimited = -1

type policyOptions struct {
	maxAttempts int
	classifier  txorch.Classifier
}

// PolicyOption is a functional option for configuring policies.
type PolicyOption func(*policyOptions)

// WithMaxAttempts sets the total number of attempts (first try included).
// Use Unlimited to retry for as long as failures stay retryable.
func WithMaxAttempts(n int) PolicyOption {
	return func(o *policyOptions) {
		o.maxAttempts = n
	}
}

// WithClassifier sets the classifier consulted for failures.
// Defaults to NewDefaultClassifier().
func WithClassifier(c txorch.Classifier) PolicyOption {
	return func(o *policyOptions) {
		o.classifier = c
	}
}

func applyPolicyOptions(opts []PolicyOption) policyOptions {
	o := policyOptions{maxAttempts: Unlimited}
	for _, opt := range opts {
		opt(&o)
	}
	if o.classifier == nil {
		o.classifier = NewDefaultClassifier()
	}
	return o
}

// rejectFailure returns a NotRetryable decision if failure must not be retried.
func rejectFailure(c txorch.Classifier, failure *txorch.ServerError) (txorch.Decision, bool) {
	if failure == nil {
		return txorch.NotRetryable{Reason: "no classified failure"}, true
	}
	if !c.IsRetryable(failure.Code) {
		return txorch.NotRetryable{Reason: fmt.Sprintf("code %s is not retryable", failure.Code)}, true
	}
	return nil, false
}

func retryOverReason(attempt int) string {
	return fmt.Sprintf("no option for attempt %d", attempt)
}

// stateless is the context of policies that keep no per-run state.
type stateless struct{}

// SamePolicy uses one option for every attempt up to an optional limit.
type SamePolicy struct {
	option      txorch.TransactionOption
	maxAttempts int
	classifier  txorch.Classifier
}

// NewSamePolicy creates a policy that always executes with option.
// Unbounded unless WithMaxAttempts is given.
func NewSamePolicy(option txorch.TransactionOption, opts ...PolicyOption) (*SamePolicy, error) {
	o := applyPolicyOptions(opts)
	if o.maxAttempts != Unlimited && o.maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive or Unlimited, got %d: %w", o.maxAttempts, txorch.ErrInvalidConfig)
	}
	return &SamePolicy{
		option:      option,
		maxAttempts: o.maxAttempts,
		classifier:  o.classifier,
	}, nil
}

// NewContext returns an empty context; SamePolicy keeps no per-run state.
func (p *SamePolicy) NewContext() txorch.PolicyContext {
	return stateless{}
}

// Decide executes with the fixed option until the limit is reached.
func (p *SamePolicy) Decide(_ txorch.PolicyContext, attempt int, failure *txorch.ServerError) txorch.Decision {
	if attempt > 0 {
		if d, rejected := rejectFailure(p.classifier, failure); rejected {
			return d
		}
	}
	if p.maxAttempts != Unlimited && attempt >= p.maxAttempts {
		return txorch.RetryOver{Reason: fmt.Sprintf("max attempts %d reached", p.maxAttempts)}
	}
	return txorch.Execute{Option: p.option}
}

// SequencePolicy uses options[i] for attempt i.
type SequencePolicy struct {
	options    []txorch.TransactionOption
	classifier txorch.Classifier
}

// NewSequencePolicy creates a policy from a non-empty ordered list of options.
// WithMaxAttempts is ignored; the list length is the limit.
func NewSequencePolicy(options []txorch.TransactionOption, opts ...PolicyOption) (*SequencePolicy, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("sequence policy needs at least one option: %w", txorch.ErrInvalidConfig)
	}
	o := applyPolicyOptions(opts)
	return &SequencePolicy{
		options:    append([]txorch.TransactionOption(nil), options...),
		classifier: o.classifier,
	}, nil
}

// NewContext returns an empty context; SequencePolicy keeps no per-run state.
func (p *SequencePolicy) NewContext() txorch.PolicyContext {
	return stateless{}
}

// Decide returns the option at index attempt, or RetryOver past the end.
func (p *SequencePolicy) Decide(_ txorch.PolicyContext, attempt int, failure *txorch.ServerError) txorch.Decision {
	if attempt > 0 {
		if d, rejected := rejectFailure(p.classifier, failure); rejected {
			return d
		}
	}
	if attempt >= len(p.options) {
		return txorch.RetryOver{Reason: retryOverReason(attempt)}
	}
	return txorch.Execute{Option: p.options[attempt]}
}

// Verify policies implement Policy at compile time
var (
	_ txorch.Policy = (*SamePolicy)(nil)
	_ txorch.Policy = (*SequencePolicy)(nil)
)
