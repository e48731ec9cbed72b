package stream

import (
	"context"
	"errors"
	"sync"
)

// Tuple2 is one round of Zip2.
type Tuple2[A, B any] struct {
	V1 A
	V2 B
}

// Tuple3 is one round of Zip3.
type Tuple3[A, B, C any] struct {
	V1 A
	V2 B
	V3 C
}

// Zip reads one element from every input per round, concurrently, and
// emits them together in input order.
//
// As soon as any input ends, the reads still in flight are cancelled,
// every input is closed and the output ends normally; inputs of unequal
// length are truncated to the shortest. If any read fails, the output
// fails with that error and every input is closed. If the caller's
// context ends mid-round, the reads that did finish are kept and the next
// Next completes the same round.
func Zip[T any](srcs ...Source[T]) Source[[]T] {
	return &zipStage[T]{srcs: srcs, held: make([]zipRead[T], len(srcs))}
}

// Zip2 is Zip over two inputs of different element types.
func Zip2[A, B any](a Source[A], b Source[B]) Source[Tuple2[A, B]] {
	return Map(Zip(erase(a), erase(b)), func(_ context.Context, row []any) (Tuple2[A, B], error) {
		return Tuple2[A, B]{V1: as[A](row[0]), V2: as[B](row[1])}, nil
	}, WithName("zip"))
}

// Zip3 is Zip over three inputs of different element types.
func Zip3[A, B, C any](a Source[A], b Source[B], c Source[C]) Source[Tuple3[A, B, C]] {
	return Map(Zip(erase(a), erase(b), erase(c)), func(_ context.Context, row []any) (Tuple3[A, B, C], error) {
		return Tuple3[A, B, C]{V1: as[A](row[0]), V2: as[B](row[1]), V3: as[C](row[2])}, nil
	}, WithName("zip"))
}

// as undoes erase. A nil interface element comes back as the zero value.
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

type zipStage[T any] struct {
	srcs []Source[T]
	// reads of the current round that finished before the caller gave up
	held []zipRead[T]
	st   state
}

type zipRead[T any] struct {
	value T
	ok    bool
	err   error
}

func (z *zipStage[T]) Next(ctx context.Context) ([]T, bool, error) {
	if done, err := z.st.terminated(); done || err != nil {
		return nil, false, err
	}
	if len(z.srcs) == 0 {
		z.st.finish(nil)
		return nil, false, nil
	}

	reads := z.readRound(ctx)
	callerDone := ctx.Err() != nil

	var failure, cancelled error
	exhausted := false
	for _, r := range reads {
		switch {
		case r.err != nil && !isContextErr(r.err):
			if failure == nil {
				failure = r.err
			}
		case r.err != nil:
			// cancelled by the caller, or by this round after a sibling ended
			cancelled = r.err
		case !r.ok:
			exhausted = true
		}
	}

	if failure == nil && !exhausted && callerDone {
		for i, r := range reads {
			if r.err == nil {
				z.held[i] = r
			}
		}
		return nil, false, ctx.Err()
	}
	if failure == nil && !exhausted && cancelled != nil {
		failure = cancelled
	}

	if failure != nil || exhausted {
		z.st.finish(failure)
		_ = closeAll(z.srcs...)
		return nil, false, failure
	}

	row := make([]T, len(reads))
	for i, r := range reads {
		row[i] = r.value
	}
	clear(z.held)
	return row, true, nil
}

// readRound pulls one element from every input that has none held from an
// interrupted round. The first input to end or fail cancels the reads of
// the others.
func (z *zipStage[T]) readRound(ctx context.Context) []zipRead[T] {
	reads := make([]zipRead[T], len(z.srcs))
	var pending []int
	for i, h := range z.held {
		if h.ok {
			reads[i] = h
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 1 {
		i := pending[0]
		v, ok, err := z.srcs[i].Next(ctx)
		reads[i] = zipRead[T]{v, ok, err}
		return reads
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, i := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := z.srcs[i].Next(rctx)
			reads[i] = zipRead[T]{v, ok, err}
			if err != nil || !ok {
				cancel()
			}
		}()
	}
	wg.Wait()
	return reads
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (z *zipStage[T]) Close() error {
	if !z.st.markClosed() {
		return nil
	}
	return closeAll(z.srcs...)
}

// erase widens a Source to Source[any] so differently typed inputs can
// share one Zip.
func erase[T any](src Source[T]) Source[any] {
	return &erased[T]{src: src}
}

type erased[T any] struct {
	src Source[T]
}

func (e *erased[T]) Next(ctx context.Context) (any, bool, error) {
	v, ok, err := e.src.Next(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v, true, nil
}

func (e *erased[T]) Close() error { return e.src.Close() }
