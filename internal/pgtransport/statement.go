package pgtransport

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Exec runs sql inside t, beginning t on the server if needed.
func (t *Transport) Exec(ctx context.Context, txn *tx.Transaction, sql string, args ...any) (pgconn.CommandTag, error) {
	h, err := t.handleFor(ctx, txn, txorch.OpStatement)
	if err != nil {
		return pgconn.CommandTag{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	tag, err := h.tx.Exec(ctx, sql, args...)
	if err != nil {
		return tag, txn.Tag(txorch.OpStatement, convertError(txorch.OpStatement, err))
	}
	return tag, nil
}

// Rows is an open result set registered as a child of its transaction.
// The transaction closes it before commit or rollback if the caller has not.
type Rows struct {
	pgx.Rows
	txn  *tx.Transaction
	once sync.Once
}

// Close releases the result set and reports its deferred error, if any.
func (r *Rows) Close() error {
	var err error
	r.once.Do(func() {
		r.Rows.Close()
		r.txn.RemoveChild(r)
		err = r.txn.Tag(txorch.OpQuery, convertError(txorch.OpQuery, r.Rows.Err()))
	})
	return err
}

// Query runs sql inside t and returns the open result set.
// The transaction must not be used for other statements until Rows is closed.
func (t *Transport) Query(ctx context.Context, txn *tx.Transaction, sql string, args ...any) (*Rows, error) {
	h, err := t.handleFor(ctx, txn, txorch.OpQuery)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	rows, err := h.tx.Query(ctx, sql, args...)
	h.mu.Unlock()
	if err != nil {
		return nil, txn.Tag(txorch.OpQuery, convertError(txorch.OpQuery, err))
	}

	r := &Rows{Rows: rows, txn: txn}
	if err := txn.AddChild(r); err != nil {
		rows.Close()
		return nil, err
	}
	return r, nil
}

// Collect runs sql inside t and maps every row with fn.
func Collect[T any](ctx context.Context, t *Transport, txn *tx.Transaction, sql string, fn pgx.RowToFunc[T], args ...any) ([]T, error) {
	rows, err := t.Query(ctx, txn, sql, args...)
	if err != nil {
		return nil, err
	}
	out, collectErr := pgx.CollectRows[T](rows.Rows, fn)
	closeErr := rows.Close()
	if closeErr != nil {
		return nil, closeErr
	}
	if collectErr != nil {
		return nil, txn.Tag(txorch.OpQuery, convertError(txorch.OpQuery, collectErr))
	}
	return out, nil
}

// ExecBatch sends every statement in one round-trip and fails on the first error.
func (t *Transport) ExecBatch(ctx context.Context, txn *tx.Transaction, statements ...string) error {
	h, err := t.handleFor(ctx, txn, txorch.OpBatch)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, sql := range statements {
		batch.Queue(sql)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	results := h.tx.SendBatch(ctx, batch)
	if err := txn.AddChild(results); err != nil {
		_ = results.Close()
		return err
	}
	defer txn.RemoveChild(results)

	for range statements {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return txn.Tag(txorch.OpBatch, convertError(txorch.OpBatch, err))
		}
	}
	if err := results.Close(); err != nil {
		return txn.Tag(txorch.OpBatch, convertError(txorch.OpBatch, err))
	}
	return nil
}

func (t *Transport) handleFor(ctx context.Context, txn *tx.Transaction, op txorch.Operation) (*handle, error) {
	id, err := txn.ID(ctx)
	if err != nil {
		return nil, err
	}
	return t.lookup(op, id)
}
