package concurrency

import (
	"context"
)

func (l *limiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inUse < l.capacity && len(l.waiters) == 0 {
		l.take()
		return true
	}
	return false
}

func (l *limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.inUse < l.capacity && len(l.waiters) == 0 {
		l.take()
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		select {
		case <-ready:
			// granted while we were giving up; hand it on
			l.inUse--
			l.grant()
		default:
			l.removeWaiter(ready)
		}
		return ctx.Err()
	}
}

func (l *limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inUse <= 0 {
		panic("concurrency: released more permits than acquired")
	}
	l.inUse--
	l.grant()
	l.metrics.ConcurrencyInUse(l.name, l.inUse)
}

func (l *limiter) SetCapacity(capacity int) {
	if capacity <= 0 {
		panic("capacity must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity = capacity
	l.grant()
}

func (l *limiter) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

func (l *limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.capacity-l.inUse, 0)
}

func (l *limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

// take must be called with l.mu held.
func (l *limiter) take() {
	l.inUse++
	l.metrics.ConcurrencyInUse(l.name, l.inUse)
}

// grant hands free permits to waiters in FIFO order. Must be called with
// l.mu held.
func (l *limiter) grant() {
	for len(l.waiters) > 0 && l.inUse < l.capacity {
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.take()
		close(ready)
	}
}

// removeWaiter must be called with l.mu held.
func (l *limiter) removeWaiter(ready chan struct{}) {
	for i, w := range l.waiters {
		if w == ready {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}
