package bucket

import (
	"context"
	"math"
	"time"
)

func (tb *tokenBucket) Allow() bool {
	return tb.AllowN(1)
}

func (tb *tokenBucket) AllowN(n int) bool {
	return tb.reserve(tb.clock.Now(), n, 0).ok
}

func (tb *tokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN books n tokens and sleeps until they are due. If ctx ends first
// the booking is cancelled and the tokens are returned.
func (tb *tokenBucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n > tb.Burst() && tb.Limit() != Inf {
		return context.DeadlineExceeded
	}

	now := tb.clock.Now()
	maxWait := time.Duration(math.MaxInt64)
	if deadline, ok := ctx.Deadline(); ok {
		maxWait = deadline.Sub(now)
	}

	r := tb.reserve(now, n, maxWait)
	if !r.ok {
		return context.DeadlineExceeded
	}

	delay := r.DelayFrom(now)
	tb.metrics.RateLimitWaited(tb.name, delay)
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (tb *tokenBucket) Reserve() *Reservation {
	return tb.ReserveN(1)
}

func (tb *tokenBucket) ReserveN(n int) *Reservation {
	return tb.reserve(tb.clock.Now(), n, time.Duration(math.MaxInt64))
}

func (tb *tokenBucket) SetLimit(limit Limit) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	tb.limit = limit
}

// SetBurst panics on a non-positive burst.
func (tb *tokenBucket) SetBurst(burst int) {
	if burst <= 0 {
		panic("bucket: burst must be positive")
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	tb.burst = burst
	tb.tokens = math.Min(tb.tokens, float64(burst))
}

func (tb *tokenBucket) Limit() Limit {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limit
}

func (tb *tokenBucket) Burst() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.burst
}

func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	return tb.tokens
}

// reserve takes n tokens, letting the balance go negative when the
// resulting wait stays within maxWait.
func (tb *tokenBucket) reserve(now time.Time, n int, maxWait time.Duration) *Reservation {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	r := &Reservation{timeToAct: now, tokens: max(n, 0), lim: tb}
	if n <= 0 || tb.limit == Inf {
		r.ok = true
		return r
	}

	tb.advance(now)
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		r.ok = true
		return r
	}
	if tb.limit == 0 {
		return r
	}

	wait := time.Duration(float64(time.Second) * (float64(n) - tb.tokens) / float64(tb.limit))
	if wait > maxWait {
		return r
	}
	tb.tokens -= float64(n)
	r.timeToAct = now.Add(wait)
	r.ok = true
	return r
}

// advance refills the bucket for the time elapsed since the last update.
// Must be called with tb.mu held.
func (tb *tokenBucket) advance(now time.Time) {
	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}
	tb.lastUpdate = now
	switch tb.limit {
	case Inf:
		tb.tokens = float64(tb.burst)
	case 0:
	default:
		tb.tokens = math.Min(tb.tokens+elapsed.Seconds()*float64(tb.limit), float64(tb.burst))
	}
}

func (tb *tokenBucket) refund(n int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(tb.clock.Now())
	tb.tokens = math.Min(tb.tokens+float64(n), float64(tb.burst))
}
