package txorch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	_, _, err := manager.Execute(ctx, m, policy, work)
//	if errors.Is(err, txorch.ErrRetryOver) {
//	    // Every attempt failed with a retryable conflict
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrAlreadyRolledBack indicates commit was requested on a rolled back transaction.
	ErrAlreadyRolledBack = errors.New("transaction already rolled back")

	// ErrTransactionClosed indicates an operation on a closed transaction.
	ErrTransactionClosed = errors.New("transaction closed")

	// ErrInvalidDecision indicates a policy returned a decision the caller cannot act on,
	// e.g. anything other than Execute for the first attempt.
	ErrInvalidDecision = errors.New("invalid retry decision")

	// ErrPhaseTimeout matches every *PhaseTimeoutError.
	ErrPhaseTimeout = errors.New("phase timeout")

	// ErrRetryOver matches every *RetryOverError.
	ErrRetryOver = errors.New("retry limit reached")
)

// Operation names the logical operation a server failure was raised by.
type Operation string

const (
	OpBegin     Operation = "begin"
	OpQuery     Operation = "query"
	OpStatement Operation = "statement"
	OpBatch     Operation = "batch"
	OpCommit    Operation = "commit"
	OpRollback  Operation = "rollback"
	OpClose     Operation = "close"
	OpWork      Operation = "work"
)

// Phase is a timeout-guarded step of the transaction lifecycle.
type Phase string

const (
	PhaseBegin    Phase = "begin"
	PhaseCommit   Phase = "commit"
	PhaseRollback Phase = "rollback"
	PhaseClose    Phase = "close"
)

// ServerError is a failure reported by the database together with its diagnostic code.
// It is the only error kind a retry policy ever inspects.
type ServerError struct {
	Code        DiagnosticCode
	Message     string
	Op          Operation // Empty until tagged
	ExecutionID string    // Empty until tagged
	Err         error     // Underlying driver error, may be nil
}

func (e *ServerError) Error() string {
	var b strings.Builder
	b.WriteString("server error")
	if e.Op != "" {
		fmt.Fprintf(&b, " during %s", e.Op)
	}
	fmt.Fprintf(&b, " [%s]", e.Code)
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.ExecutionID != "" {
		fmt.Fprintf(&b, " (execution %s)", e.ExecutionID)
	}
	return b.String()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// Tagged returns a copy of the error attributed to op under a fresh execution id.
func (e *ServerError) Tagged(op Operation) *ServerError {
	c := *e
	c.Op = op
	c.ExecutionID = NextExecutionID()
	return &c
}

// PhaseTimeoutError reports that a lifecycle phase exceeded its configured budget.
// The phase has definitely failed; the transaction must still be closed.
type PhaseTimeoutError struct {
	Phase   Phase
	Timeout time.Duration
	Err     error
}

func (e *PhaseTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Phase, e.Timeout)
}

func (e *PhaseTimeoutError) Unwrap() error {
	return e.Err
}

func (e *PhaseTimeoutError) Is(target error) bool {
	return target == ErrPhaseTimeout
}

// TransportError is a lower-level I/O failure talking to the server.
// It is never consulted against a retry policy.
type TransportError struct {
	Op  Operation
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RetryOverError is returned when the policy ran out of attempts while failures
// were still retryable.
type RetryOverError struct {
	Attempt int               // Last attempt number (zero-based)
	Option  TransactionOption // Option used by the last attempt
	Reason  string
	Cause   error // Failure of the last attempt
}

func (e *RetryOverError) Error() string {
	msg := fmt.Sprintf("retry limit reached after attempt %d with %s", e.Attempt, e.Option)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RetryOverError) Unwrap() error {
	return e.Cause
}

func (e *RetryOverError) Is(target error) bool {
	return target == ErrRetryOver
}

// Failure carries a primary error plus the secondary errors raised while cleaning up
// after it. Unwrap exposes only the primary, so errors.Is/As see the original failure.
type Failure struct {
	Primary    error
	Suppressed []error
}

func (f *Failure) Error() string {
	if len(f.Suppressed) == 0 {
		return f.Primary.Error()
	}
	msgs := make([]string, len(f.Suppressed))
	for i, s := range f.Suppressed {
		msgs[i] = s.Error()
	}
	return fmt.Sprintf("%v (suppressed: %s)", f.Primary, strings.Join(msgs, "; "))
}

func (f *Failure) Unwrap() error {
	return f.Primary
}

// Suppress attaches secondary errors to primary without ever replacing it.
// Nil secondaries are ignored. With a nil primary the first secondary is promoted.
func Suppress(primary error, secondary ...error) error {
	var extra []error
	for _, s := range secondary {
		if s != nil {
			extra = append(extra, s)
		}
	}
	if primary == nil {
		if len(extra) == 0 {
			return nil
		}
		primary, extra = extra[0], extra[1:]
	}
	if len(extra) == 0 {
		return primary
	}

	if f, ok := primary.(*Failure); ok {
		merged := make([]error, 0, len(f.Suppressed)+len(extra))
		merged = append(merged, f.Suppressed...)
		merged = append(merged, extra...)
		return &Failure{Primary: f.Primary, Suppressed: merged}
	}
	return &Failure{Primary: primary, Suppressed: extra}
}

// SuppressedErrors returns the secondary errors attached anywhere in err's chain.
func SuppressedErrors(err error) []error {
	var out []error
	for err != nil {
		if f, ok := err.(*Failure); ok {
			out = append(out, f.Suppressed...)
		}
		err = errors.Unwrap(err)
	}
	return out
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var serverErr *ServerError
	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidDecision):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrRetryOver):
		return ExitRetryOver
	case errors.Is(err, ErrPhaseTimeout):
		return ExitTimeout
	case errors.As(err, &serverErr):
		return ExitServerError
	}

	errStr := err.Error()
	for _, pattern := range usagePatterns {
		if strings.Contains(errStr, pattern) {
			return ExitUsageError
		}
	}
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}

// usagePatterns match the argument and flag errors reported by cobra.
var usagePatterns = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"required flag",
	"invalid argument",
}
