package memtransport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txorch/internal/memtransport"
	"github.com/vvka-141/txorch/pkg/txorch"
)

func begin(t *testing.T, tr *memtransport.Transport, opt txorch.TransactionOption) txorch.TransactionID {
	t.Helper()
	fut, err := tr.Begin(context.Background(), opt)
	require.NoError(t, err)
	id, err := fut.Get(context.Background())
	require.NoError(t, err)
	return id
}

func TestTransport_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tr := memtransport.New()

	first := begin(t, tr, txorch.OCC())
	second := begin(t, tr, txorch.LTX("stock"))
	assert.Equal(t, txorch.TransactionID("mem-1"), first)
	assert.Equal(t, txorch.TransactionID("mem-2"), second)

	fut, err := tr.Commit(ctx, first, txorch.CommitDefault)
	require.NoError(t, err)
	_, err = fut.Get(ctx)
	require.NoError(t, err)

	fut, err = tr.Rollback(ctx, second)
	require.NoError(t, err)
	_, err = fut.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.CloseHandle(ctx, first))
	require.NoError(t, tr.CloseHandle(ctx, second))

	records := tr.Records()
	require.Len(t, records, 2)
	assert.True(t, records[0].Committed)
	assert.False(t, records[0].RolledBack)
	assert.True(t, records[0].Closed)
	assert.Equal(t, txorch.KindLTX, records[1].Option.Kind())
	assert.True(t, records[1].RolledBack)

	assert.Equal(t, []string{
		"begin mem-1", "begin mem-2",
		"commit mem-1", "rollback mem-2",
		"close mem-1", "close mem-2",
	}, tr.Calls())
}

func TestTransport_UnknownTransaction(t *testing.T) {
	tr := memtransport.New()

	err := tr.CloseHandle(context.Background(), "mem-9")

	var te *txorch.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, txorch.OpClose, te.Op)
}

func TestTransport_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	conflict := &txorch.ServerError{Code: txorch.CodeSerializationFailure}
	tr := memtransport.New(
		memtransport.WithCommitFailure(func(rec memtransport.Record) error {
			if rec.ID == "mem-1" {
				return conflict
			}
			return nil
		}),
		memtransport.WithRollbackError(errors.New("link down")),
	)

	id := begin(t, tr, txorch.OCC())
	fut, err := tr.Commit(ctx, id, txorch.CommitDefault)
	require.NoError(t, err)
	_, err = fut.Get(ctx)
	assert.ErrorIs(t, err, conflict)

	fut, err = tr.Rollback(ctx, id)
	require.NoError(t, err)
	_, err = fut.Get(ctx)
	assert.EqualError(t, err, "link down")

	records := tr.Records()
	assert.False(t, records[0].Committed)
	assert.False(t, records[0].RolledBack)
}

func TestTransport_BeginFailure(t *testing.T) {
	tr := memtransport.New(memtransport.WithBeginFailure(func(opt txorch.TransactionOption) error {
		if opt.Kind() == txorch.KindLTX {
			return &txorch.ServerError{Code: txorch.CodeLockNotAvailable}
		}
		return nil
	}))

	fut, err := tr.Begin(context.Background(), txorch.LTX("stock"))
	require.NoError(t, err)
	_, err = fut.Get(context.Background())

	var se *txorch.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, txorch.CodeLockNotAvailable, se.Code)
	assert.Empty(t, tr.Records())
	assert.Equal(t, []string{"begin LTX{wp=[stock]} failed"}, tr.Calls())
}

func TestTransport_LatencyHonoursClose(t *testing.T) {
	tr := memtransport.New(memtransport.WithLatency(time.Hour))

	fut, err := tr.Begin(context.Background(), txorch.OCC())
	require.NoError(t, err)
	assert.False(t, fut.IsDone())

	require.NoError(t, fut.Close())
	_, err = fut.Get(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.Records())
}
