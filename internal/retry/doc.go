// Package retry decides whether and how a failed transaction is retried.
//
// A txorch.Policy is consulted once per attempt. Attempt 0 always executes; for
// later attempts the policy first asks its classifier whether the previous
// failure's diagnostic code is retryable, then picks the next transaction option
// or gives up with RetryOver.
//
// # Example Usage
//
//	policy, err := retry.NewEscalationPolicy(
//	    txorch.OCC(), 3,
//	    txorch.LTX("orders", "stock"), 2,
//	    retry.NewDefaultClassifier(),
//	)
//
//	pc := policy.NewContext()              // once per execution loop run
//	d := policy.Decide(pc, 0, nil)         // txorch.Execute{Option: OCC}
//	d = policy.Decide(pc, 1, serverErr)    // depends on serverErr.Code
//
// # Policies
//
//   - SamePolicy: one option, optional attempt limit
//   - SequencePolicy: options[i] for attempt i
//   - BucketPolicy: consecutive attempt ranges mapped to options
//   - EscalationPolicy: optimistic attempts, then pessimistic attempts, one-way
//
// Observe decorates any policy with a callback for diagnostics.
//
// # Thread Safety
//
// Policies and classifiers are immutable and safe for concurrent use. Contexts
// returned by NewContext belong to a single run and must not be shared.
package retry
