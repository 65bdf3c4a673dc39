package retry

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// DiagnosticClassifier implements txorch.ReasonClassifier over fixed code sets.
// It is immutable after construction and safe for concurrent use.
type DiagnosticClassifier struct {
	retryable map[txorch.DiagnosticCode]struct{}
	escalate  map[txorch.DiagnosticCode]struct{}
}

// NewDefaultClassifier creates a classifier for transient conflicts.
//
// Retryable: serialization failure (40001), deadlock (40P01), lock not available
// (55P03) and generic transaction rollback (40000). Deadlocks and lock conflicts
// ask escalating policies to switch to a pessimistic transaction.
func NewDefaultClassifier() *DiagnosticClassifier {
	return NewDiagnosticClassifier(
		[]txorch.DiagnosticCode{
			txorch.CodeSerializationFailure,
			txorch.CodeDeadlockDetected,
			txorch.CodeLockNotAvailable,
			txorch.CodeTransactionRollback,
		},
		[]txorch.DiagnosticCode{
			txorch.CodeDeadlockDetected,
			txorch.CodeLockNotAvailable,
		},
	)
}

// NewDiagnosticClassifier creates a classifier from explicit code sets.
// Escalating codes are retryable even when missing from retryable.
func NewDiagnosticClassifier(retryable, escalate []txorch.DiagnosticCode) *DiagnosticClassifier {
	c := &DiagnosticClassifier{
		retryable: make(map[txorch.DiagnosticCode]struct{}, len(retryable)+len(escalate)),
		escalate:  make(map[txorch.DiagnosticCode]struct{}, len(escalate)),
	}
	for _, code := range retryable {
		c.retryable[code] = struct{}{}
	}
	for _, code := range escalate {
		c.retryable[code] = struct{}{}
		c.escalate[code] = struct{}{}
	}
	return c
}

// IsRetryable returns true if code is in the retryable set.
func (c *DiagnosticClassifier) IsRetryable(code txorch.DiagnosticCode) bool {
	_, ok := c.retryable[code]
	return ok
}

// RetryReason distinguishes plain retries from retries that should escalate.
func (c *DiagnosticClassifier) RetryReason(code txorch.DiagnosticCode) txorch.RetryReason {
	if _, ok := c.escalate[code]; ok {
		return txorch.ReasonEscalate
	}
	if c.IsRetryable(code) {
		return txorch.ReasonPlain
	}
	return txorch.ReasonNotRetryable
}

// ClassifyError extracts the classified server failure from err's chain.
// Phase timeouts and transport failures are never classified.
func ClassifyError(err error) (*txorch.ServerError, bool) {
	if err == nil {
		return nil, false
	}
	var serverErr *txorch.ServerError
	if errors.As(err, &serverErr) {
		return serverErr, true
	}
	return nil, false
}

// IsTransientConnectError determines if an error raised while establishing a
// connection is temporary. It is used for pool bootstrap only; transaction
// failures go through a Classifier and a Policy instead.
func IsTransientConnectError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientConnectCode(pgErr.Code)
	}

	if isNetworkError(err) {
		return true
	}

	return hasTransientMessage(err)
}

// isTransientConnectCode checks SQLSTATE classes that indicate the server is not ready.
func isTransientConnectCode(code string) bool {
	// Class 08 - Connection Exception
	// Class 53 - Insufficient Resources
	// Class 57 - Operator Intervention (admin shutdown, crash shutdown, etc.)
	return strings.HasPrefix(code, "08") ||
		strings.HasPrefix(code, "53") ||
		strings.HasPrefix(code, "57")
}

// isNetworkError checks for network-level errors.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		if opErr.Err != nil {
			return errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
				errors.Is(opErr.Err, syscall.ECONNRESET) ||
				errors.Is(opErr.Err, syscall.ENETUNREACH) ||
				errors.Is(opErr.Err, syscall.EHOSTUNREACH)
		}
	}

	return false
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"too many connections",
	"server closed the connection",
	"unexpected eof",
}

// hasTransientMessage matches driver messages that carry no typed error.
func hasTransientMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Verify DiagnosticClassifier implements ReasonClassifier at compile time
var _ txorch.ReasonClassifier = (*DiagnosticClassifier)(nil)
