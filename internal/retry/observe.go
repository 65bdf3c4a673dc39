package retry

import "github.com/vvka-141/txorch/pkg/txorch"

// ObserverFunc receives every decision made by an observed policy.
type ObserverFunc func(attempt int, failure *txorch.ServerError, decision txorch.Decision)

type observedPolicy struct {
	txorch.Policy
	observe ObserverFunc
}

// Observe wraps policy so that fn is called after every Decide.
// fn cannot change the decision. A nil fn returns policy unchanged.
func Observe(policy txorch.Policy, fn ObserverFunc) txorch.Policy {
	if fn == nil {
		return policy
	}
	return &observedPolicy{Policy: policy, observe: fn}
}

func (p *observedPolicy) Decide(pc txorch.PolicyContext, attempt int, failure *txorch.ServerError) txorch.Decision {
	d := p.Policy.Decide(pc, attempt, failure)
	p.observe(attempt, failure, d)
	return d
}
