package retry

import (
	"context"
	"time"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// Do runs op, retrying while isTransient(err) holds and the strategy allows,
// sleeping strategy.NextDelay between attempts. onRetry may be nil.
//
// Do is for idempotent setup steps such as establishing a connection pool.
// Transactions are retried by the manager under a txorch.Policy instead.
func Do(
	ctx context.Context,
	isTransient func(error) bool,
	strategy txorch.BackoffStrategy,
	onRetry func(retry int, err error, delay time.Duration),
	op func(ctx context.Context) error,
) error {
	err := op(ctx)
	if err == nil || !isTransient(err) {
		return err
	}

	maxAttempts := strategy.MaxAttempts()
	for retry := 0; maxAttempts < 0 || retry < maxAttempts; retry++ {
		delay := strategy.NextDelay(retry)
		if onRetry != nil {
			onRetry(retry, err, delay)
		}
		if waitErr := Sleep(ctx, delay); waitErr != nil {
			return waitErr
		}

		err = op(ctx)
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
