package txorch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txorch/pkg/txorch"
)

func TestExitCodeForError(t *testing.T) {
	serverErr := &txorch.ServerError{Code: txorch.CodeSerializationFailure}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, txorch.ExitSuccess},
		{"general error", errors.New("something went wrong"), txorch.ExitGeneralError},
		{"unknown flag", errors.New("unknown flag: --foo"), txorch.ExitUsageError},
		{"accepts args", errors.New("unknown command \"x\" for \"txorch\""), txorch.ExitUsageError},
		{"invalid config", fmt.Errorf("policy: %w", txorch.ErrInvalidConfig), txorch.ExitConfigError},
		{"invalid decision", txorch.ErrInvalidDecision, txorch.ExitConfigError},
		{"connection failed", txorch.ErrConnectionFailed, txorch.ExitConnectionError},
		{"connection refused text", errors.New("dial tcp: connection refused"), txorch.ExitConnectionError},
		{"retry over", &txorch.RetryOverError{Attempt: 2, Option: txorch.OCC(), Cause: serverErr}, txorch.ExitRetryOver},
		{"phase timeout", &txorch.PhaseTimeoutError{Phase: txorch.PhaseCommit, Timeout: time.Second}, txorch.ExitTimeout},
		{"server error", fmt.Errorf("work: %w", serverErr), txorch.ExitServerError},
		{"server error with suppressed", txorch.Suppress(serverErr, errors.New("rollback failed")), txorch.ExitServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, txorch.ExitCodeForError(tt.err))
		})
	}
}

func TestSuppress_NeverReplacesPrimary(t *testing.T) {
	primary := &txorch.ServerError{Code: txorch.CodeSerializationFailure, Message: "conflict"}
	rollbackErr := errors.New("rollback failed")
	closeErr := errors.New("close failed")

	err := txorch.Suppress(primary, rollbackErr)
	err = txorch.Suppress(err, nil, closeErr)

	var got *txorch.ServerError
	require.ErrorAs(t, err, &got)
	assert.Same(t, primary, got)
	assert.Equal(t, []error{rollbackErr, closeErr}, txorch.SuppressedErrors(err))
	assert.Contains(t, err.Error(), "suppressed: rollback failed; close failed")
	assert.NotErrorIs(t, err, rollbackErr)
}

func TestSuppress_NilHandling(t *testing.T) {
	assert.NoError(t, txorch.Suppress(nil))
	assert.NoError(t, txorch.Suppress(nil, nil, nil))

	only := errors.New("child close failed")
	assert.Same(t, only, txorch.Suppress(nil, nil, only))

	second := errors.New("second")
	err := txorch.Suppress(nil, only, second)
	assert.ErrorIs(t, err, only)
	assert.Equal(t, []error{second}, txorch.SuppressedErrors(err))

	primary := errors.New("primary")
	assert.Same(t, primary, txorch.Suppress(primary, nil))
}

func TestRetryOverError(t *testing.T) {
	cause := txorch.Suppress(&txorch.ServerError{Code: txorch.CodeLockNotAvailable}, errors.New("rollback failed"))
	err := error(&txorch.RetryOverError{
		Attempt: 3,
		Option:  txorch.LTX("stock"),
		Reason:  "ltx budget 1 exhausted",
		Cause:   cause,
	})

	assert.ErrorIs(t, err, txorch.ErrRetryOver)
	assert.Contains(t, err.Error(), "after attempt 3 with LTX{wp=[stock]}")

	var serverErr *txorch.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, txorch.CodeLockNotAvailable, serverErr.Code)
	assert.Len(t, txorch.SuppressedErrors(err), 1)
}

func TestPhaseTimeoutError(t *testing.T) {
	err := error(&txorch.PhaseTimeoutError{
		Phase:   txorch.PhaseBegin,
		Timeout: 50 * time.Millisecond,
		Err:     context.DeadlineExceeded,
	})

	assert.ErrorIs(t, err, txorch.ErrPhaseTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "begin timed out after 50ms", err.Error())

	var serverErr *txorch.ServerError
	assert.False(t, errors.As(err, &serverErr), "a timeout is not a classified failure")
}

func TestServerError_Tagged(t *testing.T) {
	driverErr := errors.New("driver")
	orig := &txorch.ServerError{Code: txorch.CodeSerializationFailure, Message: "could not serialize access", Err: driverErr}

	tagged := orig.Tagged(txorch.OpCommit)
	again := orig.Tagged(txorch.OpCommit)

	assert.Empty(t, orig.ExecutionID, "original must not be modified")
	assert.Equal(t, txorch.OpCommit, tagged.Op)
	assert.NotEmpty(t, tagged.ExecutionID)
	assert.NotEqual(t, tagged.ExecutionID, again.ExecutionID)
	assert.ErrorIs(t, tagged, driverErr)
	assert.Contains(t, tagged.Error(), "during commit [40001]: could not serialize access (execution ")
}
