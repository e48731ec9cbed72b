package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed is returned by Next after the source has been closed.
var ErrStreamClosed = errors.New("stream is closed")

// Source is a single-consumer, pull-based sequence of values.
//
// Next returns the next value and true, or the zero value and false once
// the sequence has ended. A non-nil error is terminal: the sequence has
// failed and delivers nothing further. Close releases the source and
// everything upstream of it; it is safe to call more than once.
type Source[T any] interface {
	Next(ctx context.Context) (T, bool, error)
	Close() error
}

// SourceFunc adapts a pull function into a Source with a no-op Close.
type SourceFunc[T any] func(ctx context.Context) (T, bool, error)

// Next calls f.
func (f SourceFunc[T]) Next(ctx context.Context) (T, bool, error) { return f(ctx) }

// Close does nothing.
func (f SourceFunc[T]) Close() error { return nil }

// state tracks the terminal condition shared by the sequential stages: once
// a stage has ended, failed or been closed, Next keeps reporting that.
type state struct {
	mu     sync.Mutex
	done   bool
	err    error
	closed bool
}

// terminated reports the sticky outcome, if any.
func (s *state) terminated() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true, ErrStreamClosed
	}
	return s.done, s.err
}

func (s *state) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		s.err = err
	}
}

// markClosed flips the closed flag and reports whether this call did so.
func (s *state) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// closeAll closes every source, returning the first error.
func closeAll[T any](sources ...Source[T]) error {
	var first error
	for _, s := range sources {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
