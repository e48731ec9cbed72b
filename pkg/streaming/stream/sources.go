package stream

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// maxLineSize bounds a single input line read by Lines.
const maxLineSize = 1 << 20

// FromSlice creates a Source that yields the elements of slice in order.
func FromSlice[T any](slice []T) Source[T] {
	return &sliceSource[T]{slice: slice}
}

// Of creates a Source over the given values.
func Of[T any](values ...T) Source[T] {
	return FromSlice(values)
}

// FromChannel creates a Source that yields values received from ch until
// it is closed.
func FromChannel[T any](ch <-chan T) Source[T] {
	return &channelSource[T]{ch: ch, closed: make(chan struct{})}
}

// FromFunc creates a Source from a pull function. The optional closer is
// called once on Close.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error), closer func() error) Source[T] {
	return &funcSource[T]{next: next, closer: closer}
}

// Lazy creates a Source of the single value fn produces on the first
// Next. Expanding into a Lazy source defers the work of an element until
// the sub-sequence is drained, which is where MergeMap runs concurrently.
func Lazy[T any](fn func(ctx context.Context) (T, error)) Source[T] {
	done := false
	return FromFunc(func(ctx context.Context) (T, bool, error) {
		var zero T
		if done {
			return zero, false, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return zero, false, err
		}
		done = true
		return v, true, nil
	}, nil)
}

// Empty creates a Source that ends immediately.
func Empty[T any]() Source[T] {
	return &sliceSource[T]{}
}

// Fail creates a Source whose first Next returns err.
func Fail[T any](err error) Source[T] {
	return FromFunc(func(context.Context) (T, bool, error) {
		var zero T
		return zero, false, err
	}, nil)
}

// Lines creates a Source of the lines of r without their line endings.
// If r is an io.Closer it is closed when the Source is closed.
func Lines(r io.Reader) Source[string] {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var closer func() error
	if c, ok := r.(io.Closer); ok {
		closer = c.Close
	}

	return FromFunc(func(ctx context.Context) (string, bool, error) {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if !scanner.Scan() {
			return "", false, scanner.Err()
		}
		return strings.TrimSuffix(scanner.Text(), "\r"), true, nil
	}, closer)
}

type sliceSource[T any] struct {
	mu     sync.Mutex
	slice  []T
	index  int
	closed bool
}

func (s *sliceSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return zero, false, ErrStreamClosed
	}
	if s.index >= len(s.slice) {
		return zero, false, nil
	}
	v := s.slice[s.index]
	s.index++
	return v, true, nil
}

func (s *sliceSource[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type channelSource[T any] struct {
	ch        <-chan T
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *channelSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	select {
	case <-s.closed:
		return zero, false, ErrStreamClosed
	default:
	}

	select {
	case value, ok := <-s.ch:
		if !ok {
			return zero, false, nil
		}
		return value, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case <-s.closed:
		return zero, false, ErrStreamClosed
	}
}

func (s *channelSource[T]) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type funcSource[T any] struct {
	next   func(ctx context.Context) (T, bool, error)
	closer func() error
	st     state
}

func (s *funcSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	if done, err := s.st.terminated(); done || err != nil {
		return zero, false, err
	}

	v, ok, err := s.next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.st.finish(err)
		}
		return zero, false, err
	}
	if !ok {
		s.st.finish(nil)
		return zero, false, nil
	}
	return v, true, nil
}

func (s *funcSource[T]) Close() error {
	if !s.st.markClosed() || s.closer == nil {
		return nil
	}
	return s.closer()
}
