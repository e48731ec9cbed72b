package ratelimit

import "context"

// Waiter is the part of a rate limiter that request paths depend on.
// bucket.Limiter and *distributed.Limiter both satisfy it.
type Waiter interface {
	Wait(ctx context.Context) error
}
