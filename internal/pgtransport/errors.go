package pgtransport

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// convertError maps a pgx error into the txorch taxonomy. Server errors come
// back untagged; the transaction handle tags them.
func convertError(op txorch.Operation, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &txorch.ServerError{
			Code:    txorch.DiagnosticCode(pgErr.Code),
			Message: pgErr.Message,
			Err:     err,
		}
	}
	if errors.Is(err, pgx.ErrTxCommitRollback) {
		// The transaction had already failed; the server turned COMMIT into ROLLBACK.
		return &txorch.ServerError{
			Code:    txorch.CodeInactiveTransaction,
			Message: "commit unexpectedly resulted in rollback",
			Err:     err,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &txorch.TransportError{Op: op, Err: err}
}

func isTxClosed(err error) bool {
	return errors.Is(err, pgx.ErrTxClosed)
}
