// Package memtransport is an in-process txorch.Transport that keeps every
// transaction in memory. It backs policy simulation and tests.
package memtransport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vvka-141/txorch/internal/future"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Record is the observed lifecycle of one transaction.
type Record struct {
	ID         txorch.TransactionID
	Option     txorch.TransactionOption
	CommitKind txorch.CommitKind
	Committed  bool
	RolledBack bool
	Closed     bool
}

// Transport records calls and completes requests after an optional latency.
type Transport struct {
	latency     time.Duration
	beginFail   func(opt txorch.TransactionOption) error
	commitFail  func(rec Record) error
	rollbackErr error
	closeErr    error

	mu      sync.Mutex
	seq     int
	records []*Record
	byID    map[txorch.TransactionID]*Record
	calls   []string
}

// Option configures a Transport.
type Option func(*Transport)

// WithLatency delays the completion of every request, CloseHandle included.
func WithLatency(d time.Duration) Option {
	return func(t *Transport) {
		t.latency = d
	}
}

// WithBeginFailure makes begin fail whenever fn returns an error.
func WithBeginFailure(fn func(opt txorch.TransactionOption) error) Option {
	return func(t *Transport) {
		t.beginFail = fn
	}
}

// WithCommitFailure makes commit fail whenever fn returns an error.
// A failed commit leaves the transaction uncommitted.
func WithCommitFailure(fn func(rec Record) error) Option {
	return func(t *Transport) {
		t.commitFail = fn
	}
}

// WithRollbackError makes every rollback fail with err.
func WithRollbackError(err error) Option {
	return func(t *Transport) {
		t.rollbackErr = err
	}
}

// WithCloseError makes every CloseHandle fail with err.
func WithCloseError(err error) Option {
	return func(t *Transport) {
		t.closeErr = err
	}
}

// New creates an empty Transport.
func New(opts ...Option) *Transport {
	t := &Transport{byID: make(map[txorch.TransactionID]*Record)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Begin(ctx context.Context, opt txorch.TransactionOption) (txorch.Future[txorch.TransactionID], error) {
	return complete(ctx, t.latency, func() (txorch.TransactionID, error) {
		if t.beginFail != nil {
			if err := t.beginFail(opt); err != nil {
				t.record("begin " + opt.String() + " failed")
				return "", err
			}
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		t.seq++
		rec := &Record{ID: txorch.TransactionID(fmt.Sprintf("mem-%d", t.seq)), Option: opt}
		t.records = append(t.records, rec)
		t.byID[rec.ID] = rec
		t.calls = append(t.calls, "begin "+string(rec.ID))
		return rec.ID, nil
	}), nil
}

func (t *Transport) Commit(ctx context.Context, id txorch.TransactionID, kind txorch.CommitKind) (txorch.Future[txorch.Ack], error) {
	return complete(ctx, t.latency, func() (txorch.Ack, error) {
		t.record("commit " + string(id))
		rec, err := t.lookup(txorch.OpCommit, id)
		if err != nil {
			return txorch.Ack{}, err
		}
		if t.commitFail != nil {
			if err := t.commitFail(t.snapshot(rec)); err != nil {
				return txorch.Ack{}, err
			}
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		rec.Committed = true
		rec.CommitKind = kind
		return txorch.Ack{}, nil
	}), nil
}

func (t *Transport) Rollback(ctx context.Context, id txorch.TransactionID) (txorch.Future[txorch.Ack], error) {
	return complete(ctx, t.latency, func() (txorch.Ack, error) {
		t.record("rollback " + string(id))
		rec, err := t.lookup(txorch.OpRollback, id)
		if err != nil {
			return txorch.Ack{}, err
		}
		if t.rollbackErr != nil {
			return txorch.Ack{}, t.rollbackErr
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		rec.RolledBack = true
		return txorch.Ack{}, nil
	}), nil
}

func (t *Transport) CloseHandle(ctx context.Context, id txorch.TransactionID) error {
	t.record("close " + string(id))
	rec, err := t.lookup(txorch.OpClose, id)
	if err != nil {
		return err
	}
	if t.latency > 0 {
		timer := time.NewTimer(t.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rec.Closed = true
	return t.closeErr
}

// Records returns a snapshot of every transaction begun so far, in begin order.
func (t *Transport) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = *r
	}
	return out
}

// Calls returns the requests received so far, e.g. "begin mem-1", "commit mem-1".
func (t *Transport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *Transport) record(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
}

func (t *Transport) lookup(op txorch.Operation, id txorch.TransactionID) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	if !ok {
		return nil, &txorch.TransportError{Op: op, Err: fmt.Errorf("unknown transaction %q", id)}
	}
	return rec, nil
}

func (t *Transport) snapshot(rec *Record) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *rec
}

func complete[T any](ctx context.Context, latency time.Duration, fn func() (T, error)) *future.Future[T] {
	if latency <= 0 {
		v, err := fn()
		return future.Completed(v, err)
	}
	return future.Go(ctx, func(ctx context.Context) (T, error) {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
			return fn()
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	})
}

var _ txorch.Transport = (*Transport)(nil)
