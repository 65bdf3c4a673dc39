package txorch_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txorch/pkg/txorch"
)

func TestTransactionOption_Constructors(t *testing.T) {
	tests := []struct {
		name        string
		opt         txorch.TransactionOption
		kind        txorch.TransactionKind
		pessimistic bool
		str         string
	}{
		{"occ", txorch.OCC(), txorch.KindOCC, false, "OCC"},
		{"ltx", txorch.LTX("orders", "stock"), txorch.KindLTX, true, "LTX{wp=[orders,stock]}"},
		{"rtx", txorch.RTX(), txorch.KindRTX, true, "RTX"},
		{"unspecified", txorch.Unspecified(), txorch.KindUnspecified, false, "UNSPECIFIED"},
		{"labelled", txorch.OCC().WithLabel("transfer"), txorch.KindOCC, false, `OCC{label="transfer"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.opt.Kind())
			assert.Equal(t, tt.pessimistic, tt.opt.Kind().IsPessimistic())
			assert.Equal(t, tt.str, tt.opt.String())
		})
	}
}

func TestLTX_DeduplicatesAndKeepsOrder(t *testing.T) {
	opt := txorch.LTX("stock", "orders", "stock")
	assert.Equal(t, []string{"stock", "orders"}, opt.WritePreserve())
}

func TestTransactionOption_Immutable(t *testing.T) {
	opt := txorch.LTX("orders")

	wp := opt.WritePreserve()
	wp[0] = "mutated"
	assert.Equal(t, []string{"orders"}, opt.WritePreserve())

	labelled := opt.WithLabel("batch")
	assert.Empty(t, opt.Label())
	assert.Equal(t, "batch", labelled.Label())
	assert.False(t, opt.Equal(labelled))
	assert.True(t, opt.Equal(txorch.LTX("orders")))
}

func TestTransactionOption_ConcurrentReads(t *testing.T) {
	opt := txorch.LTX("a", "b").WithLabel("shared")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = opt.String()
			_ = opt.WritePreserve()
		}()
	}
	wg.Wait()
}

func TestParseTransactionKind(t *testing.T) {
	for input, want := range map[string]txorch.TransactionKind{
		"occ":       txorch.KindOCC,
		"OCC":       txorch.KindOCC,
		"long":      txorch.KindLTX,
		" ltx ":     txorch.KindLTX,
		"read-only": txorch.KindRTX,
		"":          txorch.KindUnspecified,
	} {
		got, err := txorch.ParseTransactionKind(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := txorch.ParseTransactionKind("optimistic")
	assert.ErrorIs(t, err, txorch.ErrInvalidConfig)
}

func TestParseCommitKind(t *testing.T) {
	got, err := txorch.ParseCommitKind("Stored")
	require.NoError(t, err)
	assert.Equal(t, txorch.CommitStored, got)
	assert.Equal(t, "STORED", got.String())

	_, err = txorch.ParseCommitKind("durable")
	assert.ErrorIs(t, err, txorch.ErrInvalidConfig)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "execute LTX{wp=[t]} (escalated)",
		txorch.Execute{Option: txorch.LTX("t"), Reason: "escalated"}.String())
	assert.Equal(t, "retry over", txorch.RetryOver{}.String())
	assert.Equal(t, "not retryable (code 23505)", txorch.NotRetryable{Reason: "code 23505"}.String())
}

func TestListeners_FanOutSkipsNil(t *testing.T) {
	var got []txorch.EventType
	record := txorch.ListenerFunc(func(ev txorch.Event) { got = append(got, ev.Type) })

	ls := txorch.Listeners{record, nil, record}
	ls.OnEvent(txorch.Event{Type: txorch.EventCommitEnd})

	assert.Equal(t, []txorch.EventType{txorch.EventCommitEnd, txorch.EventCommitEnd}, got)
}

func TestNextExecutionID_UniqueAcrossGoroutines(t *testing.T) {
	const goroutines, perGoroutine = 8, 200
	ids := make(chan string, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				ids <- txorch.NextExecutionID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate execution id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}
