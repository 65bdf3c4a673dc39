package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/internal/tx"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Work is a unit of work run inside one transaction attempt. It may run
// several times and must not keep state across attempts.
type Work[T any] func(ctx context.Context, t *tx.Transaction) (T, error)

// Execute runs work until it commits or policy stops it. A nil policy means
// the manager's default.
//
// It returns work's value and true on commit. If work rolled the transaction back
// itself and returned no error, Execute returns the zero value and false without
// committing. Classified server failures are rolled back and passed to policy;
// every other failure is rolled back and returned unchanged. When policy gives up
// the error is a *txorch.RetryOverError chaining the last failure. Rollback and
// close failures are attached to the returned error as suppressed errors.
func Execute[T any](ctx context.Context, m *Manager, policy txorch.Policy, work Work[T]) (T, bool, error) {
	var zero T
	if policy == nil {
		policy = m.policy
	}

	pc := policy.NewContext()
	first := policy.Decide(pc, 0, nil)
	exec, ok := first.(txorch.Execute)
	if !ok {
		return zero, false, fmt.Errorf("%w: first attempt yielded %s", txorch.ErrInvalidDecision, first)
	}
	option := exec.Option

	start := time.Now()
	m.emit(txorch.Event{Type: txorch.EventExecuteStart, Option: option})

	val, committed, attempt, err := m.loop(ctx, policy, pc, option, func(ctx context.Context, t *tx.Transaction) (any, error) {
		return work(ctx, t)
	})

	m.emit(txorch.Event{
		Type:    txorch.EventExecuteEnd,
		Attempt: attempt,
		Err:     err,
		Elapsed: time.Since(start),
	})
	if err != nil || !committed {
		return zero, false, err
	}
	result, _ := val.(T) // nil for a nil interface result
	return result, true, nil
}

// ExecuteDefault is Execute with the manager's default policy.
func ExecuteDefault[T any](ctx context.Context, m *Manager, work Work[T]) (T, bool, error) {
	return Execute(ctx, m, nil, work)
}

// Run executes work that produces no value. An explicit rollback by work is not an error.
func (m *Manager) Run(ctx context.Context, policy txorch.Policy, work func(ctx context.Context, t *tx.Transaction) error) error {
	_, _, err := Execute(ctx, m, policy, func(ctx context.Context, t *tx.Transaction) (struct{}, error) {
		return struct{}{}, work(ctx, t)
	})
	return err
}

func (m *Manager) loop(
	ctx context.Context,
	policy txorch.Policy,
	pc txorch.PolicyContext,
	option txorch.TransactionOption,
	work func(ctx context.Context, t *tx.Transaction) (any, error),
) (any, bool, int, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, attempt, err
		}

		m.logger.Verbose("attempt %d with %s", attempt, option)
		val, committed, err := m.attempt(ctx, option, attempt, work)
		if err == nil {
			if !committed {
				m.logger.Verbose("attempt %d rolled back by work, no result", attempt)
			}
			return val, committed, attempt, nil
		}

		failure, classified := retry.ClassifyError(err)
		if !classified {
			return nil, false, attempt, err
		}

		decision := policy.Decide(pc, attempt+1, failure)
		m.emit(txorch.Event{
			Type:     txorch.EventRetry,
			Attempt:  attempt + 1,
			Option:   option,
			Err:      err,
			Decision: decision,
		})

		switch d := decision.(type) {
		case txorch.Execute:
			m.logger.Info("attempt %d failed with %s, retrying with %s", attempt, failure.Code, d.Option)
			if m.backoff != nil {
				if waitErr := retry.Sleep(ctx, m.backoff.NextDelay(attempt)); waitErr != nil {
					return nil, false, attempt, txorch.Suppress(waitErr, err)
				}
			}
			option = d.Option
		case txorch.RetryOver:
			m.logger.Info("attempt %d failed with %s, giving up: %s", attempt, failure.Code, d)
			return nil, false, attempt, &txorch.RetryOverError{
				Attempt: attempt,
				Option:  option,
				Reason:  d.Reason,
				Cause:   err,
			}
		case txorch.NotRetryable:
			m.logger.Verbose("attempt %d failed with %s: %s", attempt, failure.Code, d)
			return nil, false, attempt, err
		default:
			return nil, false, attempt, txorch.Suppress(
				fmt.Errorf("%w: %v", txorch.ErrInvalidDecision, decision), err)
		}
	}
}

// attempt runs work in a new transaction and commits it. committed is false
// with a nil error when work rolled back on its own.
func (m *Manager) attempt(
	ctx context.Context,
	option txorch.TransactionOption,
	attempt int,
	work func(ctx context.Context, t *tx.Transaction) (any, error),
) (val any, committed bool, err error) {
	t := tx.New(tx.Config{
		Transport: m.transport,
		Option:    option,
		Attempt:   attempt,
		Timeouts:  m.timeouts,
		Listener:  m.listener,
		Logger:    m.logger,
	})
	cleanupCtx := context.WithoutCancel(ctx)

	defer func() {
		closeErr := t.Close()
		if closeErr == nil {
			return
		}
		if err != nil {
			err = txorch.Suppress(err, closeErr)
			return
		}
		m.logger.Error("%s: close failed: %v", t, closeErr)
	}()

	err = t.RunWork(ctx, func(ctx context.Context, t *tx.Transaction) error {
		var workErr error
		val, workErr = work(ctx, t)
		return workErr
	})
	if err == nil {
		if t.IsRolledBack() {
			return nil, false, nil
		}
		err = t.Commit(ctx, m.commitKind)
		if err == nil {
			return val, true, nil
		}
		if _, classified := retry.ClassifyError(err); !classified {
			err = fmt.Errorf("commit of attempt %d with %s: %w", attempt, option, err)
		}
	}

	return nil, false, txorch.Suppress(err, t.Rollback(cleanupCtx))
}

func (m *Manager) emit(ev txorch.Event) {
	m.listener.OnEvent(ev)
}
