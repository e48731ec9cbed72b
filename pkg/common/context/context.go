// Package context carries run-scoped values and small helpers on top of
// the standard context package.
package context

import (
	"context"
	"errors"
	"time"
)

type runIDKey struct{}

// WithRunID returns a copy of parent tagged with the id of the retrieval
// or scheduled run it belongs to.
func WithRunID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, runIDKey{}, id)
}

// RunID returns the run id stored in ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// WithTimeoutOrCancel is context.WithTimeout, except that a non-positive
// timeout only adds cancellation.
func WithTimeoutOrCancel(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCanceled reports whether ctx is done for any reason.
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut reports whether err, or ctx's own error when err is nil,
// is a deadline expiry.
func IsTimedOut(ctx context.Context, err error) bool {
	if err == nil {
		err = ctx.Err()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
