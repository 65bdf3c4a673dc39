package txorch

import (
	"fmt"
	"time"
)

// Classifier decides whether a diagnostic code describes a transient conflict.
// Implementations must be stateless and safe for concurrent use.
type Classifier interface {
	// IsRetryable returns true if a transaction failing with code may be retried.
	IsRetryable(code DiagnosticCode) bool
}

// ReasonClassifier is a Classifier that also tells escalating policies whether a
// retry should keep the same transaction kind or switch to a pessimistic one.
type ReasonClassifier interface {
	Classifier

	// RetryReason returns ReasonNotRetryable, ReasonPlain or ReasonEscalate.
	RetryReason(code DiagnosticCode) RetryReason
}

// PolicyContext is the per-run state of a Policy. It is created once per execution
// loop invocation and must never be shared between invocations.
type PolicyContext interface{}

// Policy decides, for each attempt, which transaction option to use or whether to stop.
// Policies are shared across concurrent execution loops and must hold no per-run state.
type Policy interface {
	// NewContext creates the per-run state for one execution loop invocation.
	NewContext() PolicyContext

	// Decide returns the decision for attempt. attempt 0 has no failure and must
	// yield Execute; attempt n>0 is preceded by the failure of attempt n-1.
	Decide(pc PolicyContext, attempt int, failure *ServerError) Decision
}

// Decision is the outcome of Policy.Decide: exactly one of Execute, RetryOver
// or NotRetryable.
type Decision interface {
	fmt.Stringer
	decision()
}

// Execute runs the next attempt with Option.
type Execute struct {
	Option TransactionOption
	Reason string
}

// RetryOver stops retrying because the attempt budget is exhausted.
type RetryOver struct {
	Reason string
}

// NotRetryable stops retrying because the failure may not be retried.
type NotRetryable struct {
	Reason string
}

func (Execute) decision()      {}
func (RetryOver) decision()    {}
func (NotRetryable) decision() {}

func (d Execute) String() string {
	return "execute " + d.Option.String() + reasonSuffix(d.Reason)
}

func (d RetryOver) String() string {
	return "retry over" + reasonSuffix(d.Reason)
}

func (d NotRetryable) String() string {
	return "not retryable" + reasonSuffix(d.Reason)
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return " (" + reason + ")"
}

// BackoffStrategy calculates the delay before the next retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the duration to wait before the next attempt.
	// retry is zero-indexed (0 = first retry, 1 = second retry, etc.)
	NextDelay(retry int) time.Duration

	// MaxAttempts returns the maximum number of retry attempts (0 = no retries, -1 = unlimited)
	MaxAttempts() int
}
