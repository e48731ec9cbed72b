package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// trackedSource counts pulls and records whether it was closed.
type trackedSource[T any] struct {
	inner  Source[T]
	pulls  atomic.Int32
	closed atomic.Bool
}

func track[T any](src Source[T]) *trackedSource[T] {
	return &trackedSource[T]{inner: src}
}

func (s *trackedSource[T]) Next(ctx context.Context) (T, bool, error) {
	v, ok, err := s.inner.Next(ctx)
	if ok {
		s.pulls.Add(1)
	}
	return v, ok, err
}

func (s *trackedSource[T]) Close() error {
	s.closed.Store(true)
	return s.inner.Close()
}

// counter is an endless source of 1, 2, 3, ...
func counter() Source[int] {
	var n int
	return FromFunc(func(ctx context.Context) (int, bool, error) {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		n++
		return n, true, nil
	}, nil)
}

// slow emits values, waiting delay before each one or until ctx is done.
func slow[T any](delay time.Duration, values ...T) Source[T] {
	i := 0
	return FromFunc(func(ctx context.Context) (T, bool, error) {
		var zero T
		if i >= len(values) {
			return zero, false, nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
		v := values[i]
		i++
		return v, true, nil
	}, nil)
}

// then yields values and then fails with err.
func then[T any](err error, values ...T) Source[T] {
	i := 0
	return FromFunc(func(ctx context.Context) (T, bool, error) {
		var zero T
		if i < len(values) {
			i++
			return values[i-1], true, nil
		}
		return zero, false, err
	}, nil)
}

// blockUntilCancelled never yields; Next returns when ctx is done.
func blockUntilCancelled[T any]() Source[T] {
	return FromFunc(func(ctx context.Context) (T, bool, error) {
		var zero T
		<-ctx.Done()
		return zero, false, ctx.Err()
	}, nil)
}

// barrier releases every waiter once n of them have arrived.
type barrier struct {
	mu      sync.Mutex
	n       int
	release chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, release: make(chan struct{})}
}

func (b *barrier) wait(ctx context.Context) error {
	b.mu.Lock()
	b.n--
	if b.n == 0 {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func double(_ context.Context, x int) (int, error) { return x * 2, nil }

// after returns a transform that answers x after delay, or fails when ctx
// is done first.
func after(delay time.Duration) func(context.Context, int) (int, error) {
	return func(ctx context.Context, x int) (int, error) {
		select {
		case <-time.After(delay):
			return x, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
