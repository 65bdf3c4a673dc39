package pgtransport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txorch/internal/manager"
	"github.com/vvka-141/txorch/internal/pgtransport"
	"github.com/vvka-141/txorch/internal/retry"
	testhelpers "github.com/vvka-141/txorch/internal/testing"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

func setup(t *testing.T, table string) (*pgtransport.Transport, *manager.Manager, func(sql string) int) {
	t.Helper()
	connString := testhelpers.RequireDatabase(t)
	pool := testhelpers.GetTestPool(t, connString)
	testhelpers.CreateTestTable(t, pool, table, "id int PRIMARY KEY, balance int NOT NULL")

	transport := pgtransport.New(pool)
	m, err := manager.New(transport, manager.WithCommitKind(txorch.CommitStored))
	require.NoError(t, err)

	scalar := func(sql string) int {
		var n int
		require.NoError(t, pool.QueryRow(context.Background(), sql).Scan(&n))
		return n
	}
	return transport, m, scalar
}

func TestIntegration_CommitAndQuery(t *testing.T) {
	transport, m, scalar := setup(t, "txorch_it_commit")
	ctx := context.Background()

	rows, committed, err := manager.ExecuteDefault(ctx, m, func(ctx context.Context, txn *tx.Transaction) ([]int, error) {
		if _, err := transport.Exec(ctx, txn, "INSERT INTO txorch_it_commit VALUES (1, 100), (2, 50)"); err != nil {
			return nil, err
		}
		return pgtransport.Collect(ctx, transport, txn, "SELECT balance FROM txorch_it_commit ORDER BY id", pgx.RowTo[int])
	})

	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, []int{100, 50}, rows)
	assert.Equal(t, 150, scalar("SELECT sum(balance) FROM txorch_it_commit"))
	assert.Zero(t, transport.OpenCount())
}

func TestIntegration_ExplicitRollback(t *testing.T) {
	transport, m, scalar := setup(t, "txorch_it_rollback")

	err := m.Run(context.Background(), nil, func(ctx context.Context, txn *tx.Transaction) error {
		if _, err := transport.Exec(ctx, txn, "INSERT INTO txorch_it_rollback VALUES (1, 1)"); err != nil {
			return err
		}
		return txn.Rollback(ctx)
	})

	require.NoError(t, err)
	assert.Zero(t, scalar("SELECT count(*) FROM txorch_it_rollback"))
	assert.Zero(t, transport.OpenCount())
}

func TestIntegration_SerializationConflictIsRetried(t *testing.T) {
	connString := testhelpers.RequireDatabase(t)
	pool := testhelpers.GetTestPool(t, connString)
	transport, m, scalar := setup(t, "txorch_it_conflict")
	ctx := context.Background()

	_, err := pool.Exec(ctx, "INSERT INTO txorch_it_conflict VALUES (1, 100)")
	require.NoError(t, err)

	var attempts int
	err = m.Run(ctx, nil, func(ctx context.Context, txn *tx.Transaction) error {
		attempts++
		balance, err := pgtransport.Collect(ctx, transport, txn, "SELECT balance FROM txorch_it_conflict WHERE id = 1", pgx.RowTo[int])
		if err != nil {
			return err
		}
		if txn.Attempt() == 0 {
			// A concurrent writer commits after this snapshot was taken.
			if _, err := pool.Exec(ctx, "UPDATE txorch_it_conflict SET balance = balance + 1 WHERE id = 1"); err != nil {
				return err
			}
		}
		_, err = transport.Exec(ctx, txn, "UPDATE txorch_it_conflict SET balance = $1 WHERE id = 1", balance[0]*2)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 202, scalar("SELECT balance FROM txorch_it_conflict WHERE id = 1"))
	assert.Zero(t, transport.OpenCount())
}

func TestIntegration_WritePreserveConflict(t *testing.T) {
	connString := testhelpers.RequireDatabase(t)
	pool := testhelpers.GetTestPool(t, connString)
	transport, m, _ := setup(t, "txorch_it_lock")
	ctx := context.Background()

	holder, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx) //nolint:errcheck
	_, err = holder.Exec(ctx, "LOCK TABLE txorch_it_lock IN ROW EXCLUSIVE MODE")
	require.NoError(t, err)

	policy, err := retry.NewSamePolicy(txorch.LTX("txorch_it_lock"), retry.WithMaxAttempts(2))
	require.NoError(t, err)

	var attempts int
	err = m.Run(ctx, policy, func(ctx context.Context, txn *tx.Transaction) error {
		attempts++
		_, err := transport.Exec(ctx, txn, "INSERT INTO txorch_it_lock VALUES (1, 1)")
		return err
	})

	require.ErrorIs(t, err, txorch.ErrRetryOver)
	var serverErr *txorch.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, txorch.CodeLockNotAvailable, serverErr.Code)
	assert.Equal(t, txorch.OpBegin, serverErr.Op)
	assert.Equal(t, 2, attempts)
	assert.Zero(t, transport.OpenCount())
}

func TestIntegration_ReadOnlyRejectsWrites(t *testing.T) {
	transport, m, _ := setup(t, "txorch_it_readonly")

	policy, err := retry.NewSamePolicy(txorch.RTX(), retry.WithMaxAttempts(3))
	require.NoError(t, err)

	err = m.Run(context.Background(), policy, func(ctx context.Context, txn *tx.Transaction) error {
		_, err := transport.Exec(ctx, txn, "INSERT INTO txorch_it_readonly VALUES (1, 1)")
		return err
	})

	var serverErr *txorch.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, txorch.DiagnosticCode("25006"), serverErr.Code)
	assert.Equal(t, txorch.OpStatement, serverErr.Op)
}

func TestIntegration_LabelAndBatch(t *testing.T) {
	transport, m, scalar := setup(t, "txorch_it_batch")

	policy, err := retry.NewSamePolicy(txorch.OCC().WithLabel("txorch-it"), retry.WithMaxAttempts(1))
	require.NoError(t, err)

	names, committed, err := manager.Execute(context.Background(), m, policy, func(ctx context.Context, txn *tx.Transaction) ([]string, error) {
		if err := transport.ExecBatch(ctx, txn,
			"INSERT INTO txorch_it_batch VALUES (1, 10)",
			"INSERT INTO txorch_it_batch VALUES (2, 20)",
		); err != nil {
			return nil, err
		}
		return pgtransport.Collect(ctx, transport, txn, "SELECT current_setting('application_name')", pgx.RowTo[string])
	})

	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, []string{"txorch-it"}, names)
	assert.Equal(t, 2, scalar("SELECT count(*) FROM txorch_it_batch"))
}

func TestIntegration_OpenRowsClosedBeforeCommit(t *testing.T) {
	transport, m, _ := setup(t, "txorch_it_rows")

	err := m.Run(context.Background(), nil, func(ctx context.Context, txn *tx.Transaction) error {
		_, err := transport.Query(ctx, txn, "SELECT generate_series(1, 100)")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, txn.ChildCount())
		return nil
	})

	require.NoError(t, err)
	assert.Zero(t, transport.OpenCount())
}
