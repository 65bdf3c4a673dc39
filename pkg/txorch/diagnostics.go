package txorch

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// DiagnosticCode is the opaque code a server attaches to a failure.
// For the PostgreSQL transport these are SQLSTATE values.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
type DiagnosticCode string

const (
	// Class 40 - Transaction Rollback
	CodeTransactionRollback  DiagnosticCode = "40000"
	CodeSerializationFailure DiagnosticCode = "40001" // write conflict abort
	CodeDeadlockDetected     DiagnosticCode = "40P01"

	// Class 55 - Object Not In Prerequisite State
	CodeLockNotAvailable DiagnosticCode = "55P03" // write-preserve conflict

	// Class 25 - Invalid Transaction State
	CodeInactiveTransaction DiagnosticCode = "25P02"
)

// RetryReason refines a retryable diagnosis for escalating policies.
type RetryReason int

const (
	// ReasonNotRetryable means the failure must not be retried.
	ReasonNotRetryable RetryReason = iota
	// ReasonPlain means retry with the same kind of transaction.
	ReasonPlain
	// ReasonEscalate means retry, but switch to a pessimistic kind.
	ReasonEscalate
)

// String returns a human-readable string representation of the RetryReason.
func (r RetryReason) String() string {
	switch r {
	case ReasonNotRetryable:
		return "not-retryable"
	case ReasonPlain:
		return "plain"
	case ReasonEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

var (
	executionPrefix = uuid.New().String()[:8]
	executionSeq    atomic.Uint64
)

// NextExecutionID returns an id that is unique among all operations of this process.
func NextExecutionID() string {
	return fmt.Sprintf("%s-%d", executionPrefix, executionSeq.Add(1))
}
