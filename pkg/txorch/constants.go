package txorch

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Unit of work committed (or rolled back by itself)
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or policy
	ExitConnectionError = 11 // Failed to connect to database
	ExitRetryOver       = 12 // Retry budget exhausted
	ExitServerError     = 13 // Non-retryable server failure
	ExitTimeout         = 14 // A lifecycle phase timed out
)

const (
	// DefaultBeginTimeout bounds the wait for the server to assign a transaction id.
	DefaultBeginTimeout = 30 * time.Second

	// DefaultCommitTimeout bounds the wait for a commit acknowledgement.
	DefaultCommitTimeout = 30 * time.Second

	// DefaultRollbackTimeout bounds the wait for a rollback acknowledgement.
	DefaultRollbackTimeout = 10 * time.Second

	// DefaultCloseTimeout bounds releasing a transaction handle.
	DefaultCloseTimeout = 5 * time.Second

	// DefaultMaxAttempts is the attempt budget of the manager's default policy.
	DefaultMaxAttempts = 3

	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultConnectAttempts is the number of retries when establishing the pool.
	DefaultConnectAttempts = 3

	// ConfigFileName is the project configuration file read by the CLI.
	ConfigFileName = "txorch.yaml"

	// DatabaseURLEnv names the environment variable holding the connection string.
	DatabaseURLEnv = "TXORCH_DATABASE_URL"
)
