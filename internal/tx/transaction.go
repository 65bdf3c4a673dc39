// Package tx implements the transaction handle driven by one attempt of the
// execution loop: lazy begin, phase timeouts, child resources and cleanup.
package tx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vvka-141/txorch/internal/logging"
	"github.com/vvka-141/txorch/pkg/txorch"
)

var txSeq atomic.Int64

// Config holds the collaborators of a Transaction.
type Config struct {
	Transport txorch.Transport
	Option    txorch.TransactionOption
	Attempt   int
	Timeouts  Timeouts
	Listener  txorch.Listener // optional
	Logger    txorch.Logger   // optional
}

// Transaction owns one server-side transaction for one attempt.
//
// The wire begin is deferred until the identifier is first needed. Commit,
// rollback and close are idempotent and each runs under its own timeout.
// Child resources registered with AddChild are closed before the transaction.
//
// Thread-Safety: lifecycle methods serialize on an internal mutex, so a Close
// racing with Commit or Rollback waits for it and then becomes a no-op or a
// plain release. Listeners are called with the mutex held and must not call
// back into the transaction.
type Transaction struct {
	seq       int64
	attempt   int
	option    txorch.TransactionOption
	transport txorch.Transport
	timeouts  Timeouts
	listener  txorch.Listener
	logger    txorch.Logger

	mu            sync.Mutex
	state         State
	closedFrom    State
	id            txorch.TransactionID
	beginFut      txorch.Future[txorch.TransactionID]
	openErr       error
	commitErr     error
	serverAborted bool

	childMu        sync.Mutex
	children       []io.Closer
	childrenClosed bool
}

// New creates an unopened transaction. No request is sent until first use.
// Panics if cfg.Transport is nil.
func New(cfg Config) *Transaction {
	if cfg.Transport == nil {
		panic("transport cannot be nil")
	}
	listener := cfg.Listener
	if listener == nil {
		listener = txorch.Listeners(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Transaction{
		seq:       txSeq.Add(1),
		attempt:   cfg.Attempt,
		option:    cfg.Option,
		transport: cfg.Transport,
		timeouts:  cfg.Timeouts,
		listener:  listener,
		logger:    logger,
	}
}

// Seq returns the process-unique local sequence id of the transaction.
func (t *Transaction) Seq() int64 { return t.seq }

// Attempt returns the execution-loop attempt this transaction belongs to.
func (t *Transaction) Attempt() int { return t.attempt }

// Option returns the option the transaction is opened with.
func (t *Transaction) Option() txorch.TransactionOption { return t.option }

// Timeouts returns the phase timeouts in effect.
func (t *Transaction) Timeouts() Timeouts { return t.timeouts }

func (t *Transaction) String() string {
	return fmt.Sprintf("tx#%d(%s, attempt %d)", t.seq, t.option, t.attempt)
}

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsCommitted reports whether commit succeeded, even if the handle is now closed.
func (t *Transaction) IsCommitted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAs(StateCommitted)
}

// IsRolledBack reports whether the transaction was rolled back, even if now closed.
func (t *Transaction) IsRolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAs(StateRolledBack)
}

func (t *Transaction) finishedAs(s State) bool {
	return t.state == s || (t.state == StateClosed && t.closedFrom == s)
}

// Open begins the transaction on the server if that has not happened yet.
// A failed begin is cached and returned again without another round-trip.
func (t *Transaction) Open(ctx context.Context) error {
	_, err := t.ID(ctx)
	return err
}

// ID returns the server-assigned identifier, beginning the transaction if needed.
func (t *Transaction) ID(ctx context.Context) (txorch.TransactionID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked(ctx)
}

func (t *Transaction) openLocked(ctx context.Context) (txorch.TransactionID, error) {
	if t.id != "" {
		return t.id, nil
	}
	switch t.state {
	case StateClosed:
		return "", txorch.ErrTransactionClosed
	case StateRolledBack:
		return "", txorch.ErrAlreadyRolledBack
	}
	if t.openErr != nil {
		return "", t.openErr
	}

	start := time.Now()
	t.emit(txorch.EventBeginStart, nil, 0)
	id, err := t.begin(ctx)
	t.emit(txorch.EventBeginEnd, err, time.Since(start))
	if err != nil {
		t.openErr = err
		t.logger.Verbose("%s: begin failed: %v", t, err)
		return "", err
	}

	t.id = id
	t.state = StateOpen
	t.logger.Verbose("%s: begun as %s", t, id)
	return id, nil
}

func (t *Transaction) begin(ctx context.Context) (txorch.TransactionID, error) {
	if t.beginFut == nil {
		fut, err := t.transport.Begin(ctx, t.option)
		if err != nil {
			return "", t.Tag(txorch.OpBegin, err)
		}
		t.beginFut = fut
	}

	pctx, cancel := phaseContext(ctx, t.timeouts.Begin)
	defer cancel()
	id, err := t.beginFut.Get(pctx)
	if err != nil {
		return "", t.phaseError(ctx, pctx, txorch.PhaseBegin, t.timeouts.Begin, txorch.OpBegin, err)
	}
	return id, nil
}

// RunWork invokes fn with this transaction. Errors from fn are returned
// unchanged, except that an untagged *txorch.ServerError is tagged as work.
func (t *Transaction) RunWork(ctx context.Context, fn func(ctx context.Context, t *Transaction) error) error {
	start := time.Now()
	t.emit(txorch.EventWorkStart, nil, 0)
	err := t.Tag(txorch.OpWork, fn(ctx, t))
	t.emit(txorch.EventWorkEnd, err, time.Since(start))
	return err
}

// Tag attributes an untagged server failure to op under a fresh execution id.
// The failure may be wrapped; the wrapping is kept. Other errors, and already
// tagged server failures, are returned as-is.
func (t *Transaction) Tag(op txorch.Operation, err error) error {
	var serverErr *txorch.ServerError
	if !errors.As(err, &serverErr) || serverErr.ExecutionID != "" {
		return err
	}
	tagged := serverErr.Tagged(op)
	t.logger.Verbose("%s: %s failed with %s (execution %s)", t, op, tagged.Code, tagged.ExecutionID)
	return retag(err, tagged)
}

func retag(err error, tagged *txorch.ServerError) error {
	switch e := err.(type) {
	case *txorch.ServerError:
		return tagged
	case *txorch.Failure:
		return &txorch.Failure{Primary: retag(e.Primary, tagged), Suppressed: e.Suppressed}
	}
	return &taggedError{err: err, server: tagged}
}

// taggedError keeps the message and chain of a wrapped server failure while
// exposing its tagged copy to errors.As first.
type taggedError struct {
	err    error
	server *txorch.ServerError
}

func (e *taggedError) Error() string { return e.err.Error() }

func (e *taggedError) Unwrap() []error { return []error{e.server, e.err} }

// Commit commits the transaction and waits for the requested durability.
//
// Commit is a no-op once committed and fails with ErrAlreadyRolledBack after a
// rollback. Child resources are closed first; if that fails, no commit request is
// sent. A failed commit is remembered and returned by later calls.
func (t *Transaction) Commit(ctx context.Context, kind txorch.CommitKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateCommitted:
		return nil
	case StateRolledBack:
		return txorch.ErrAlreadyRolledBack
	case StateClosed:
		if t.closedFrom == StateCommitted {
			return nil
		}
		return txorch.ErrTransactionClosed
	}
	if t.commitErr != nil {
		return t.commitErr
	}

	start := time.Now()
	t.emit(txorch.EventCommitStart, nil, 0)
	err := t.commit(ctx, kind)
	t.emit(txorch.EventCommitEnd, err, time.Since(start))
	if err != nil {
		t.commitErr = err
		return err
	}

	t.state = StateCommitted
	t.logger.Verbose("%s: committed (%s)", t, kind)
	return nil
}

func (t *Transaction) commit(ctx context.Context, kind txorch.CommitKind) error {
	if err := t.closeChildren(false); err != nil {
		return t.Tag(txorch.OpCommit, err)
	}

	id, err := t.openLocked(ctx)
	if err != nil {
		return err
	}

	fut, err := t.transport.Commit(ctx, id, kind)
	if err != nil {
		return t.rejected(t.Tag(txorch.OpCommit, err))
	}
	defer fut.Close()

	pctx, cancel := phaseContext(ctx, t.timeouts.Commit)
	defer cancel()
	if _, err := fut.Get(pctx); err != nil {
		return t.rejected(t.phaseError(ctx, pctx, txorch.PhaseCommit, t.timeouts.Commit, txorch.OpCommit, err))
	}
	return nil
}

// rejected records that the server aborted the transaction when err is a
// classified answer to the commit request.
func (t *Transaction) rejected(err error) error {
	var serverErr *txorch.ServerError
	if errors.As(err, &serverErr) {
		t.serverAborted = true
	}
	return err
}

// Rollback rolls the transaction back. It is a no-op after commit, rollback or
// close. No request is sent if the transaction never began on the server or the
// server already aborted it. The transaction ends rolled back even on error;
// child close failures are attached to the result.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateCommitted, StateRolledBack, StateClosed:
		return nil
	}

	start := time.Now()
	t.emit(txorch.EventRollbackStart, nil, 0)
	childErr := t.closeChildren(false)

	var err error
	if t.id != "" && !t.serverAborted {
		err = t.rollback(ctx)
	}
	t.state = StateRolledBack

	err = txorch.Suppress(err, childErr)
	t.emit(txorch.EventRollbackEnd, err, time.Since(start))
	t.logger.Verbose("%s: rolled back", t)
	return err
}

func (t *Transaction) rollback(ctx context.Context) error {
	fut, err := t.transport.Rollback(ctx, t.id)
	if err != nil {
		return t.Tag(txorch.OpRollback, err)
	}
	defer fut.Close()

	pctx, cancel := phaseContext(ctx, t.timeouts.Rollback)
	defer cancel()
	if _, err := fut.Get(pctx); err != nil {
		return t.phaseError(ctx, pctx, txorch.PhaseRollback, t.timeouts.Rollback, txorch.OpRollback, err)
	}
	return nil
}

// Close releases the transaction. It is idempotent and safe to call in any state.
//
// Every child is closed, then the server handle is released, then the begin
// request. Cleanup continues past failures; the first failure is returned with
// the rest attached as suppressed errors.
func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateClosed {
		return nil
	}

	start := time.Now()
	t.emit(txorch.EventCloseStart, nil, 0)
	t.closedFrom = t.state
	t.state = StateClosed

	var errs []error
	if err := t.closeChildren(true); err != nil {
		errs = append(errs, err)
	}

	if t.beginFut != nil {
		ctx, cancel := phaseContext(context.Background(), t.timeouts.Close)
		defer cancel()

		id := t.id
		if id == "" && t.beginFut.IsDone() {
			// Begin completed after its wait timed out; the server still holds it.
			if late, err := t.beginFut.Get(ctx); err == nil {
				id = late
			}
		}
		if id != "" {
			if err := t.transport.CloseHandle(ctx, id); err != nil {
				errs = append(errs, t.phaseError(context.Background(), ctx, txorch.PhaseClose, t.timeouts.Close, txorch.OpClose, err))
			}
		}
		if err := t.beginFut.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	err := txorch.Suppress(nil, errs...)
	t.emit(txorch.EventCloseEnd, err, time.Since(start))
	if err != nil {
		t.logger.Verbose("%s: close failed: %v", t, err)
	}
	return err
}

// AddChild registers a resource that must be closed before the transaction.
func (t *Transaction) AddChild(c io.Closer) error {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	if t.childrenClosed {
		return txorch.ErrTransactionClosed
	}
	t.children = append(t.children, c)
	return nil
}

// RemoveChild unregisters a resource, typically because it was closed by its owner.
func (t *Transaction) RemoveChild(c io.Closer) {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	if i := slices.Index(t.children, c); i >= 0 {
		t.children = slices.Delete(t.children, i, i+1)
	}
}

// ChildCount returns the number of registered children.
func (t *Transaction) ChildCount() int {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	return len(t.children)
}

// closeChildren closes every registered child once, in registration order.
// final forbids registering new children afterwards.
func (t *Transaction) closeChildren(final bool) error {
	t.childMu.Lock()
	children := t.children
	t.children = nil
	if final {
		t.childrenClosed = true
	}
	t.childMu.Unlock()

	var errs []error
	for _, c := range children {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return txorch.Suppress(nil, errs...)
}

// phaseError converts an error from a phase wait into the error taxonomy.
func (t *Transaction) phaseError(
	parent, phaseCtx context.Context,
	phase txorch.Phase,
	timeout time.Duration,
	op txorch.Operation,
	err error,
) error {
	if errors.Is(err, context.DeadlineExceeded) &&
		parent.Err() == nil &&
		errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		return &txorch.PhaseTimeoutError{Phase: phase, Timeout: timeout, Err: err}
	}
	return t.Tag(op, err)
}

func (t *Transaction) emit(typ txorch.EventType, err error, elapsed time.Duration) {
	t.listener.OnEvent(txorch.Event{
		Type:    typ,
		TxSeq:   t.seq,
		Attempt: t.attempt,
		Option:  t.option,
		Err:     err,
		Elapsed: elapsed,
	})
}

func phaseContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
