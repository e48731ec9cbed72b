package stream

import (
	"context"
	"sync"
)

// Tee splits src into two branches that each deliver every element of src
// and its termination. See MultiTee.
func Tee[T any](src Source[T], opts ...Option) (Source[T], Source[T]) {
	branches := MultiTee(src, 2, opts...)
	return branches[0], branches[1]
}

// MultiTee splits src into n branches that each deliver the same elements
// in the same order, followed by the same end or failure.
//
// Whichever branch needs an element that no branch has pulled yet starts a
// pull from src and queues the result for every open branch. The pull is
// not bound to the context of that branch's Next: if the caller gives up,
// the element still reaches the other branches, and this one on its next
// call. A branch may run ahead of the slowest open branch by at most
// max(1, high-water-mark) elements; beyond that it waits, so memory stays
// bounded.
//
// Branches must be consumed from separate goroutines. Draining one branch
// to the end before reading another blocks forever once the first is
// max(1, high-water-mark) elements ahead, unless the other branches are
// closed.
//
// Closing a branch removes it from the set. src is closed once every
// branch is closed, after any pull in progress has returned.
func MultiTee[T any](src Source[T], n int, opts ...Option) []Source[T] {
	o := buildOptions("tee", opts)
	if n < 1 {
		n = 1
	}
	t := &tee[T]{
		src:    src,
		opts:   o,
		limit:  max(o.highWaterMark, 1),
		queues: make([][]T, n),
		open:   n,
		closed: make([]bool, n),
		notify: make(chan struct{}),
	}
	branches := make([]Source[T], n)
	for i := range branches {
		branches[i] = &teeBranch[T]{t: t, id: i}
	}
	return branches
}

type tee[T any] struct {
	src   Source[T]
	opts  options
	limit int

	mu       sync.Mutex
	queues   [][]T
	closed   []bool
	open     int
	pulling  bool
	stopPull context.CancelFunc
	pullDone chan struct{}
	done     bool
	err      error
	// closed and replaced on every state change
	notify chan struct{}
}

type teeBranch[T any] struct {
	t  *tee[T]
	id int
}

func (b *teeBranch[T]) Next(ctx context.Context) (T, bool, error) {
	t := b.t
	var zero T

	for {
		t.mu.Lock()
		if t.closed[b.id] {
			t.mu.Unlock()
			return zero, false, ErrStreamClosed
		}
		if q := t.queues[b.id]; len(q) > 0 {
			v := q[0]
			q[0] = zero
			t.queues[b.id] = q[1:]
			t.broadcast()
			t.mu.Unlock()
			return v, true, nil
		}
		if t.done {
			err := t.err
			t.mu.Unlock()
			return zero, false, err
		}
		if !t.pulling && !t.othersFull(b.id) {
			t.startPull(ctx)
		}
		wait := t.notify
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

func (b *teeBranch[T]) Close() error {
	t := b.t

	t.mu.Lock()
	if t.closed[b.id] {
		t.mu.Unlock()
		return nil
	}
	t.closed[b.id] = true
	t.queues[b.id] = nil
	t.open--
	last := t.open == 0
	var inflight chan struct{}
	if last && t.pulling {
		t.stopPull()
		inflight = t.pullDone
	}
	t.broadcast()
	t.mu.Unlock()

	if !last {
		return nil
	}
	if inflight != nil {
		<-inflight
	}
	return t.src.Close()
}

// startPull reads the next element of src in the background, keeping the
// values of ctx but not its cancellation. Must be called with t.mu held.
func (t *tee[T]) startPull(ctx context.Context) {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	t.pulling = true
	t.stopPull = cancel
	t.pullDone = done
	go t.pull(pctx, cancel, done)
}

func (t *tee[T]) pull(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	v, ok, err := t.src.Next(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.broadcast()
	t.pulling = false
	t.stopPull, t.pullDone = nil, nil

	switch {
	case err != nil:
		t.done, t.err = true, err
		return
	case !ok:
		t.done = true
		return
	}

	for i := range t.queues {
		if !t.closed[i] {
			t.queues[i] = append(t.queues[i], v)
		}
	}
	t.opts.metrics.StreamElement(t.opts.name)
}

// othersFull reports whether some other open branch already holds the
// maximum number of queued elements. Must be called with t.mu held.
func (t *tee[T]) othersFull(id int) bool {
	for i, q := range t.queues {
		if i != id && !t.closed[i] && len(q) >= t.limit {
			return true
		}
	}
	return false
}

// broadcast wakes every waiting branch. Must be called with t.mu held.
func (t *tee[T]) broadcast() {
	close(t.notify)
	t.notify = make(chan struct{})
}
