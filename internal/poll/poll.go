// Package poll turns "maybe not ready yet" queries into values that resolve once.
package poll

import (
	"context"
	"sync"
	"time"
)

// Loader produces a value, or ok=false when there is nothing yet.
type Loader[T any] func(ctx context.Context) (v T, ok bool)

// Until evaluates load immediately and then every interval until cond holds for a
// loaded value, returning that value. There is no timeout: Until only gives up when
// ctx is cancelled, in which case it returns ctx.Err().
func Until[T any](ctx context.Context, interval time.Duration, load Loader[T], cond func(T) bool) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if v, ok := load(ctx); ok && cond(v) {
		return v, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
			if v, ok := load(ctx); ok && cond(v) {
				return v, nil
			}
		}
	}
}

// Future is the result of an asynchronous Until.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// Async runs Until on its own goroutine.
func Async[T any](ctx context.Context, interval time.Duration, load Loader[T], cond func(T) bool) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		v, err := Until(ctx, interval, load, cond)
		f.resolve(v, err)
	}()
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Value returns the resolved value. It is the zero value until Done is closed.
func (f *Future[T]) Value() T {
	select {
	case <-f.done:
		return f.val
	default:
		var zero T
		return zero
	}
}

// Err returns the cancellation error, if the wait was cancelled.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}
