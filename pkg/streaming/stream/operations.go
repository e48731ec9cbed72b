package stream

import (
	"context"
)

// Filter passes through the elements for which predicate returns true, in
// order. The predicate is never called concurrently with itself; an error
// from it fails the stage and closes upstream.
func Filter[T any](src Source[T], predicate func(context.Context, T) (bool, error), opts ...Option) Source[T] {
	o := buildOptions("filter", opts)
	return withBuffer[T](&filterStage[T]{src: src, predicate: predicate, opts: o}, o)
}

// Map applies transform to each element in order, waiting for each call to
// finish before pulling the next element. An error from transform fails
// the stage and closes upstream.
func Map[T, U any](src Source[T], transform func(context.Context, T) (U, error), opts ...Option) Source[U] {
	o := buildOptions("map", opts)
	return withBuffer[U](&mapStage[T, U]{src: src, transform: transform, opts: o}, o)
}

// FlatMap expands each element into a sub-sequence and drains it fully,
// in order, before pulling the next element. A failure of expand or of
// any sub-sequence fails the whole stage.
func FlatMap[T, U any](src Source[T], expand func(context.Context, T) (Source[U], error), opts ...Option) Source[U] {
	o := buildOptions("flatMap", opts)
	return withBuffer[U](&flatMapStage[T, U]{src: src, expand: expand, opts: o}, o)
}

// Peek calls action for every element as it passes through.
func Peek[T any](src Source[T], action func(T), opts ...Option) Source[T] {
	return Map(src, func(_ context.Context, v T) (T, error) {
		action(v)
		return v, nil
	}, append([]Option{WithName("peek")}, opts...)...)
}

// Limit ends the sequence after n elements and closes upstream.
func Limit[T any](src Source[T], n int) Source[T] {
	return &limitStage[T]{src: src, remaining: n}
}

// Skip drops the first n elements.
func Skip[T any](src Source[T], n int) Source[T] {
	skipped := 0
	return Filter(src, func(context.Context, T) (bool, error) {
		if skipped < n {
			skipped++
			return false, nil
		}
		return true, nil
	}, WithName("skip"))
}

type filterStage[T any] struct {
	src       Source[T]
	predicate func(context.Context, T) (bool, error)
	opts      options
	st        state
	held      carry[T]
}

func (f *filterStage[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	for {
		if done, err := f.st.terminated(); done || err != nil {
			return zero, false, err
		}

		v, ok := f.held.take()
		if !ok {
			var err error
			v, ok, err = f.src.Next(ctx)
			if err != nil {
				return zero, false, fail(ctx, &f.st, err)
			}
			if !ok {
				f.st.finish(nil)
				return zero, false, nil
			}
		}

		keep, err := f.predicate(ctx, v)
		if err != nil {
			f.held.keep(ctx, v)
			return zero, false, failCallback(ctx, &f.st, f.opts, f.src, err)
		}
		if keep {
			f.opts.metrics.StreamElement(f.opts.name)
			return v, true, nil
		}
	}
}

func (f *filterStage[T]) Close() error {
	if !f.st.markClosed() {
		return nil
	}
	return f.src.Close()
}

type mapStage[T, U any] struct {
	src       Source[T]
	transform func(context.Context, T) (U, error)
	opts      options
	st        state
	held      carry[T]
}

func (m *mapStage[T, U]) Next(ctx context.Context) (U, bool, error) {
	var zero U

	if done, err := m.st.terminated(); done || err != nil {
		return zero, false, err
	}

	v, ok := m.held.take()
	if !ok {
		var err error
		v, ok, err = m.src.Next(ctx)
		if err != nil {
			return zero, false, fail(ctx, &m.st, err)
		}
		if !ok {
			m.st.finish(nil)
			return zero, false, nil
		}
	}

	out, err := m.transform(ctx, v)
	if err != nil {
		m.held.keep(ctx, v)
		return zero, false, failCallback(ctx, &m.st, m.opts, m.src, err)
	}
	m.opts.metrics.StreamElement(m.opts.name)
	return out, true, nil
}

func (m *mapStage[T, U]) Close() error {
	if !m.st.markClosed() {
		return nil
	}
	return m.src.Close()
}

type flatMapStage[T, U any] struct {
	src    Source[T]
	expand func(context.Context, T) (Source[U], error)
	cur    Source[U]
	opts   options
	st     state
	held   carry[T]
}

func (f *flatMapStage[T, U]) Next(ctx context.Context) (U, bool, error) {
	var zero U

	for {
		if done, err := f.st.terminated(); done || err != nil {
			return zero, false, err
		}

		if f.cur != nil {
			v, ok, err := f.cur.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					_ = f.cur.Close()
					f.cur = nil
				}
				return zero, false, failCallback(ctx, &f.st, f.opts, f.src, err)
			}
			if ok {
				f.opts.metrics.StreamElement(f.opts.name)
				return v, true, nil
			}
			_ = f.cur.Close()
			f.cur = nil
		}

		v, ok := f.held.take()
		if !ok {
			var err error
			v, ok, err = f.src.Next(ctx)
			if err != nil {
				return zero, false, fail(ctx, &f.st, err)
			}
			if !ok {
				f.st.finish(nil)
				return zero, false, nil
			}
		}

		sub, err := f.expand(ctx, v)
		if err != nil {
			f.held.keep(ctx, v)
			return zero, false, failCallback(ctx, &f.st, f.opts, f.src, err)
		}
		f.cur = sub
	}
}

func (f *flatMapStage[T, U]) Close() error {
	if !f.st.markClosed() {
		return nil
	}
	var cur Source[U]
	cur, f.cur = f.cur, nil
	if cur != nil {
		_ = cur.Close()
	}
	return f.src.Close()
}

type limitStage[T any] struct {
	src       Source[T]
	remaining int
	st        state
}

func (l *limitStage[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	if done, err := l.st.terminated(); done || err != nil {
		return zero, false, err
	}
	if l.remaining <= 0 {
		l.st.finish(nil)
		_ = l.src.Close()
		return zero, false, nil
	}

	v, ok, err := l.src.Next(ctx)
	if err != nil {
		return zero, false, fail(ctx, &l.st, err)
	}
	if !ok {
		l.st.finish(nil)
		return zero, false, nil
	}
	l.remaining--
	return v, true, nil
}

func (l *limitStage[T]) Close() error {
	if !l.st.markClosed() {
		return nil
	}
	return l.src.Close()
}

// carry holds an element a stage has pulled but could not finish with
// because the caller's context ended; the next Next resumes with it.
type carry[T any] struct {
	v  T
	ok bool
}

// keep holds v if ctx has ended.
func (c *carry[T]) keep(ctx context.Context, v T) {
	if ctx.Err() != nil {
		c.v, c.ok = v, true
	}
}

func (c *carry[T]) take() (T, bool) {
	var zero T
	v, ok := c.v, c.ok
	c.v, c.ok = zero, false
	return v, ok
}

// fail records an upstream error. Errors caused by the caller's own
// context are returned but not remembered, so a stage is not poisoned by
// one cancelled pull.
func fail(ctx context.Context, st *state, err error) error {
	if ctx.Err() == nil {
		st.finish(err)
	}
	return err
}

// failCallback records an error raised by a stage's own callback or
// sub-sequence, and cancels upstream.
func failCallback[T any](ctx context.Context, st *state, o options, upstream Source[T], err error) error {
	if ctx.Err() != nil {
		return err
	}
	st.finish(err)
	o.metrics.StreamError(o.name, "fatal")
	_ = upstream.Close()
	return err
}
