// Package txorch defines the contracts shared by the retry policies, the
// transaction handle, the execution loop and the transports.
package txorch

import "context"

// TransactionID is the server-assigned identifier of a transaction.
type TransactionID string

// Ack is the empty acknowledgement returned by commit and rollback requests.
type Ack struct{}

// Future is the asynchronous result of a request sent to the server.
type Future[T any] interface {
	// IsDone reports whether the result is available without blocking.
	IsDone() bool

	// Get blocks until the result is available or ctx is done.
	// If ctx expires first, Get returns ctx.Err() and the request stays in flight.
	Get(ctx context.Context) (T, error)

	// Close releases transport resources tied to the request, whether or not
	// it has completed. Safe to call more than once.
	Close() error
}

//go:generate mockgen -destination=../../internal/mocks/transport.go -package=mocks github.com/vvka-141/txorch/pkg/txorch Transport

// Transport sends transaction lifecycle requests to the server.
//
// Errors returned by requests or futures should be *ServerError when the server
// reported a diagnostic code and *TransportError for I/O failures.
type Transport interface {
	// Begin requests a new transaction with the given option.
	Begin(ctx context.Context, opt TransactionOption) (Future[TransactionID], error)

	// Commit requests commit of the transaction, waiting for the given durability.
	Commit(ctx context.Context, id TransactionID, kind CommitKind) (Future[Ack], error)

	// Rollback requests rollback of the transaction.
	Rollback(ctx context.Context, id TransactionID) (Future[Ack], error)

	// CloseHandle releases the transaction handle. A transaction that is still
	// active is abandoned and the server aborts it. Best effort.
	CloseHandle(ctx context.Context, id TransactionID) error
}
