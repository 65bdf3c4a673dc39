package pgtransport

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txorch/pkg/txorch"
)

func TestTxOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  txorch.TransactionOption
		want pgx.TxOptions
	}{
		{"occ", txorch.OCC(), pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}},
		{"ltx", txorch.LTX("orders"), pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}},
		{"rtx", txorch.RTX(), pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadOnly, DeferrableMode: pgx.Deferrable}},
		{"unspecified", txorch.Unspecified(), pgx.TxOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TxOptions(tt.opt))
		})
	}
}

func TestLockStatement(t *testing.T) {
	assert.Equal(t,
		`LOCK TABLE "orders", "public"."stock" IN SHARE ROW EXCLUSIVE MODE NOWAIT`,
		LockStatement([]string{"orders", "public.stock"}))
	assert.Equal(t,
		`LOCK TABLE "we""ird" IN SHARE ROW EXCLUSIVE MODE NOWAIT`,
		LockStatement([]string{`we"ird`}))
}

func TestSynchronousCommit(t *testing.T) {
	tests := map[txorch.CommitKind]string{
		txorch.CommitDefault:    "",
		txorch.CommitAccepted:   "off",
		txorch.CommitAvailable:  "local",
		txorch.CommitStored:     "on",
		txorch.CommitPropagated: "remote_apply",
	}
	for kind, want := range tests {
		assert.Equal(t, want, SynchronousCommit(kind), kind.String())
	}
}

func TestConvertError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, convertError(txorch.OpCommit, nil))
	})

	t.Run("server error", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
		err := convertError(txorch.OpStatement, pgErr)

		var serverErr *txorch.ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, txorch.CodeSerializationFailure, serverErr.Code)
		assert.Equal(t, pgErr.Message, serverErr.Message)
		assert.Empty(t, serverErr.Op)
		assert.Empty(t, serverErr.ExecutionID)
		assert.ErrorIs(t, err, pgErr)
	})

	t.Run("commit turned into rollback", func(t *testing.T) {
		err := convertError(txorch.OpCommit, pgx.ErrTxCommitRollback)

		var serverErr *txorch.ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, txorch.CodeInactiveTransaction, serverErr.Code)
	})

	t.Run("context", func(t *testing.T) {
		assert.Same(t, context.Canceled, convertError(txorch.OpCommit, context.Canceled))
	})

	t.Run("io failure", func(t *testing.T) {
		err := convertError(txorch.OpRollback, io.ErrUnexpectedEOF)

		var transportErr *txorch.TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, txorch.OpRollback, transportErr.Op)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestTransport_UnknownTransaction(t *testing.T) {
	tr := New(nil)

	_, err := tr.Commit(context.Background(), "pg-404", txorch.CommitDefault)
	var transportErr *txorch.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, txorch.OpCommit, transportErr.Op)

	_, err = tr.Rollback(context.Background(), "pg-404")
	assert.Error(t, err)

	assert.NoError(t, tr.CloseHandle(context.Background(), "pg-404"))
	assert.Zero(t, tr.OpenCount())
}
