package retry

import (
	"fmt"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// EscalationPolicy starts with optimistic transactions and switches, once and for
// good, to a pessimistic transaction when the optimistic budget is spent or the
// classifier reports a conflict that optimistic retries will not resolve.
//
// The escalation flag lives in the per-run context. A run never de-escalates:
// a later failure that would be a plain retry keeps using the pessimistic option.
type EscalationPolicy struct {
	occ         txorch.TransactionOption
	occSize     int
	pessimistic txorch.TransactionOption
	ltxSize     int
	classifier  txorch.ReasonClassifier
}

// escalationState is the per-run context of an EscalationPolicy.
type escalationState struct {
	escalated bool
	occUsed   int
	ltxUsed   int
}

// NewEscalationPolicy creates an optimistic-then-pessimistic policy.
// occ must be an OCC option and pessimistic an LTX or RTX option; both sizes
// must be at least 1. A nil classifier means NewDefaultClassifier().
func NewEscalationPolicy(
	occ txorch.TransactionOption,
	occSize int,
	pessimistic txorch.TransactionOption,
	ltxSize int,
	classifier txorch.ReasonClassifier,
) (*EscalationPolicy, error) {
	if occ.Kind() != txorch.KindOCC {
		return nil, fmt.Errorf("optimistic option must be OCC, got %s: %w", occ.Kind(), txorch.ErrInvalidConfig)
	}
	if !pessimistic.Kind().IsPessimistic() {
		return nil, fmt.Errorf("pessimistic option must be LTX or RTX, got %s: %w", pessimistic.Kind(), txorch.ErrInvalidConfig)
	}
	if occSize < 1 {
		return nil, fmt.Errorf("occ size must be at least 1, got %d: %w", occSize, txorch.ErrInvalidConfig)
	}
	if ltxSize < 1 {
		return nil, fmt.Errorf("ltx size must be at least 1, got %d: %w", ltxSize, txorch.ErrInvalidConfig)
	}
	if classifier == nil {
		classifier = NewDefaultClassifier()
	}

	return &EscalationPolicy{
		occ:         occ,
		occSize:     occSize,
		pessimistic: pessimistic,
		ltxSize:     ltxSize,
		classifier:  classifier,
	}, nil
}

// NewContext creates the per-run escalation state.
func (p *EscalationPolicy) NewContext() txorch.PolicyContext {
	return &escalationState{}
}

// Decide consumes the optimistic budget first, then the pessimistic one.
// Panics if pc was not created by this policy type.
func (p *EscalationPolicy) Decide(pc txorch.PolicyContext, attempt int, failure *txorch.ServerError) txorch.Decision {
	st, ok := pc.(*escalationState)
	if !ok || st == nil {
		panic(fmt.Sprintf("escalation policy: foreign policy context %T", pc))
	}

	reason := txorch.ReasonPlain
	if attempt > 0 {
		if d, rejected := rejectFailure(p.classifier, failure); rejected {
			return d
		}
		reason = p.classifier.RetryReason(failure.Code)
	}

	if !st.escalated {
		switch {
		case reason == txorch.ReasonEscalate:
			st.escalated = true
		case st.occUsed >= p.occSize:
			st.escalated = true
		default:
			st.occUsed++
			return txorch.Execute{Option: p.occ, Reason: fmt.Sprintf("optimistic %d/%d", st.occUsed, p.occSize)}
		}
	}

	if st.ltxUsed >= p.ltxSize {
		return txorch.RetryOver{Reason: fmt.Sprintf("pessimistic budget %d spent", p.ltxSize)}
	}
	st.ltxUsed++
	return txorch.Execute{Option: p.pessimistic, Reason: fmt.Sprintf("pessimistic %d/%d", st.ltxUsed, p.ltxSize)}
}

// Escalated reports whether the run owning pc has switched to the pessimistic option.
func (p *EscalationPolicy) Escalated(pc txorch.PolicyContext) bool {
	st, ok := pc.(*escalationState)
	return ok && st != nil && st.escalated
}

var _ txorch.Policy = (*EscalationPolicy)(nil)
