// Package future implements txorch.Future over goroutines and channels.
package future

import (
	"context"
	"sync"

	"github.com/vvka-141/txorch/pkg/txorch"
)

// Future is a result that becomes available once. Safe for concurrent use.
type Future[T any] struct {
	done   chan struct{}
	val    T
	err    error
	cancel context.CancelFunc

	closeOnce sync.Once
	onClose   func() error
	closeErr  error
}

// Go starts fn in a new goroutine and returns its future.
// fn's context keeps parent's values but not its cancellation; it is cancelled
// by Close, so a request abandoned after a phase timeout does not linger.
func Go[T any](parent context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Completed returns a future that is already done.
func Completed[T any](val T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: val, err: err}
	close(f.done)
	return f
}

// Pending returns a future completed later through the returned function.
// Only the first call to complete has an effect.
func Pending[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	var once sync.Once
	return f, func(val T, err error) {
		once.Do(func() {
			f.val, f.err = val, err
			close(f.done)
		})
	}
}

// OnClose registers fn to run on the first Close. Must be called before the
// future is shared.
func (f *Future[T]) OnClose(fn func() error) *Future[T] {
	f.onClose = fn
	return f
}

// IsDone reports whether the result is available.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get waits for the result or for ctx to be done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Close cancels the request if it is still running and runs the OnClose hook.
func (f *Future[T]) Close() error {
	f.closeOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		if f.onClose != nil {
			f.closeErr = f.onClose()
		}
	})
	return f.closeErr
}

// Done returns a channel closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

var (
	_ txorch.Future[txorch.TransactionID] = (*Future[txorch.TransactionID])(nil)
	_ txorch.Future[txorch.Ack]           = (*Future[txorch.Ack])(nil)
)
