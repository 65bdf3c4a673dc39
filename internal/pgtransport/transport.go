// Package pgtransport implements txorch.Transport on PostgreSQL through pgx.
//
// Transaction kinds map onto PostgreSQL as follows:
//
//   - OCC: SERIALIZABLE read-write; conflicts surface as 40001 at statement or commit time
//   - LTX: SERIALIZABLE read-write that locks its write-preserve tables with NOWAIT at
//     begin, so a conflicting writer fails fast with 55P03
//   - RTX: SERIALIZABLE READ ONLY DEFERRABLE, which never aborts on conflicts
//   - Unspecified: the server default
//
// A transaction label is applied as the transaction-local application_name and the
// commit kind as the transaction-local synchronous_commit level.
package pgtransport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/txorch/internal/future"
	"github.com/vvka-141/txorch/internal/logging"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Beginner starts pgx transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Transport runs each txorch transaction on its own pgx transaction.
// It is safe for concurrent use; a single transaction must be driven by one
// goroutine at a time.
type Transport struct {
	db     Beginner
	logger txorch.Logger

	mu   sync.Mutex
	open map[txorch.TransactionID]*handle
	seq  atomic.Uint64
}

type handle struct {
	mu       sync.Mutex
	tx       pgx.Tx
	finished bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l txorch.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// New creates a Transport over db.
func New(db Beginner, opts ...Option) *Transport {
	t := &Transport{
		db:     db,
		logger: logging.NewNullLogger(),
		open:   make(map[txorch.TransactionID]*handle),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts a transaction for opt. The returned future yields its id.
// Closing the future before the begin completes releases the transaction.
func (t *Transport) Begin(ctx context.Context, opt txorch.TransactionOption) (txorch.Future[txorch.TransactionID], error) {
	fut := future.Go(ctx, func(ctx context.Context) (txorch.TransactionID, error) {
		return t.begin(ctx, opt)
	})
	fut.OnClose(func() error {
		<-fut.Done()
		id, err := fut.Get(context.Background())
		if err != nil {
			return nil
		}
		// No-op when the owner already released the handle.
		return t.CloseHandle(context.Background(), id)
	})
	return fut, nil
}

func (t *Transport) begin(ctx context.Context, opt txorch.TransactionOption) (txorch.TransactionID, error) {
	pgTx, err := t.db.BeginTx(ctx, TxOptions(opt))
	if err != nil {
		return "", convertError(txorch.OpBegin, err)
	}

	if err := prepare(ctx, pgTx, opt); err != nil {
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
		return "", err
	}

	id := txorch.TransactionID(fmt.Sprintf("pg-%d", t.seq.Add(1)))
	t.mu.Lock()
	t.open[id] = &handle{tx: pgTx}
	t.mu.Unlock()

	t.logger.Verbose("pg transaction %s begun as %s", id, opt)
	return id, nil
}

// TxOptions returns the pgx options for a transaction kind.
func TxOptions(opt txorch.TransactionOption) pgx.TxOptions {
	switch opt.Kind() {
	case txorch.KindOCC, txorch.KindLTX:
		return pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	case txorch.KindRTX:
		return pgx.TxOptions{
			IsoLevel:       pgx.Serializable,
			AccessMode:     pgx.ReadOnly,
			DeferrableMode: pgx.Deferrable,
		}
	default:
		return pgx.TxOptions{}
	}
}

func prepare(ctx context.Context, pgTx pgx.Tx, opt txorch.TransactionOption) error {
	if label := opt.Label(); label != "" {
		if _, err := pgTx.Exec(ctx, "SELECT set_config('application_name', $1, true)", label); err != nil {
			return convertError(txorch.OpBegin, err)
		}
	}
	if tables := opt.WritePreserve(); len(tables) > 0 {
		if _, err := pgTx.Exec(ctx, LockStatement(tables)); err != nil {
			return convertError(txorch.OpBegin, err)
		}
	}
	return nil
}

// LockStatement builds the statement reserving write access to tables.
// Dotted names are treated as schema-qualified.
func LockStatement(tables []string) string {
	quoted := make([]string, len(tables))
	for i, name := range tables {
		quoted[i] = pgx.Identifier(strings.Split(name, ".")).Sanitize()
	}
	return "LOCK TABLE " + strings.Join(quoted, ", ") + " IN SHARE ROW EXCLUSIVE MODE NOWAIT"
}

// SynchronousCommit returns the synchronous_commit level for kind, or "" for
// the server default.
func SynchronousCommit(kind txorch.CommitKind) string {
	switch kind {
	case txorch.CommitAccepted:
		return "off"
	case txorch.CommitAvailable:
		return "local"
	case txorch.CommitStored:
		return "on"
	case txorch.CommitPropagated:
		return "remote_apply"
	default:
		return ""
	}
}

// Commit commits the transaction id.
func (t *Transport) Commit(ctx context.Context, id txorch.TransactionID, kind txorch.CommitKind) (txorch.Future[txorch.Ack], error) {
	h, err := t.lookup(txorch.OpCommit, id)
	if err != nil {
		return nil, err
	}
	return future.Go(ctx, func(ctx context.Context) (txorch.Ack, error) {
		h.mu.Lock()
		defer h.mu.Unlock()

		if level := SynchronousCommit(kind); level != "" {
			// SET cannot take bind parameters; level comes from a fixed set.
			if _, err := h.tx.Exec(ctx, "SET LOCAL synchronous_commit TO "+level); err != nil {
				return txorch.Ack{}, convertError(txorch.OpCommit, err)
			}
		}
		err := h.tx.Commit(ctx)
		h.finished = true
		if err != nil {
			return txorch.Ack{}, convertError(txorch.OpCommit, err)
		}
		return txorch.Ack{}, nil
	}), nil
}

// Rollback rolls the transaction id back.
func (t *Transport) Rollback(ctx context.Context, id txorch.TransactionID) (txorch.Future[txorch.Ack], error) {
	h, err := t.lookup(txorch.OpRollback, id)
	if err != nil {
		return nil, err
	}
	return future.Go(ctx, func(ctx context.Context) (txorch.Ack, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return txorch.Ack{}, h.rollback(ctx)
	}), nil
}

// CloseHandle releases the transaction id, rolling it back if it is still
// running. Unknown or already released ids are ignored.
func (t *Transport) CloseHandle(ctx context.Context, id txorch.TransactionID) error {
	t.mu.Lock()
	h, ok := t.open[id]
	delete(t.open, id)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rollback(ctx)
}

// OpenCount returns the number of transactions not yet released.
func (t *Transport) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

func (h *handle) rollback(ctx context.Context) error {
	if h.finished {
		return nil
	}
	h.finished = true
	if err := h.tx.Rollback(ctx); err != nil && !isTxClosed(err) {
		return convertError(txorch.OpRollback, err)
	}
	return nil
}

func (t *Transport) lookup(op txorch.Operation, id txorch.TransactionID) (*handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.open[id]
	if !ok {
		return nil, &txorch.TransportError{Op: op, Err: fmt.Errorf("unknown transaction %q", id)}
	}
	return h, nil
}

var _ txorch.Transport = (*Transport)(nil)
