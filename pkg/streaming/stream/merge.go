package stream

import (
	"context"
	"sync"

	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/concurrency"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/channel"
)

// MergeMap expands every upstream element into a sub-sequence as soon as it
// arrives and drains all active sub-sequences concurrently into one
// output. Output order across sub-sequences is unspecified.
//
// A sub-sequence that fails, or an expand call that returns an error, is
// logged and dropped; the rest of the stage carries on. When upstream
// ends, the output ends once every active sub-sequence has drained. When
// upstream fails, its error is surfaced after the active sub-sequences
// have drained, or after they have been cancelled with WithEagerCancel.
//
// WithConcurrency or WithLimiter bound the number of sub-sequences drained
// at once; upstream is not pulled while the bound is reached.
func MergeMap[T, U any](src Source[T], expand func(context.Context, T) (Source[U], error), opts ...Option) Source[U] {
	o := buildOptions("mergeMap", opts)
	m := &mergeMap[T, U]{
		src:     src,
		expand:  expand,
		opts:    o,
		limiter: o.limiter,
		active:  make(map[int]Source[U]),
	}
	if m.limiter == nil && o.concurrency > 0 {
		// capacity is positive, so this cannot fail
		m.limiter, _ = concurrency.NewWithConfigSafe(concurrency.Config{
			Capacity: o.concurrency,
			Name:     o.name,
			Metrics:  o.metrics,
		})
	}
	return newDriven(o.highWaterMark, o, src.Close, m.run)
}

type mergeMap[T, U any] struct {
	src     Source[T]
	expand  func(context.Context, T) (Source[U], error)
	opts    options
	limiter concurrency.Limiter

	mu     sync.Mutex
	active map[int]Source[U]
	nextID int
	closed bool
	err    error
	wg     sync.WaitGroup
}

func (m *mergeMap[T, U]) run(ctx context.Context, out channel.BackpressureChannel[U]) error {
	subCtx, cancelSubs := context.WithCancel(ctx)
	defer cancelSubs()

	for {
		v, ok, err := m.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			m.mu.Lock()
			m.err = err
			m.mu.Unlock()
			m.opts.log().Debug().Err(err).Int("active", m.activeCount()).Msg("upstream failed")
			if m.opts.eagerCancel {
				cancelSubs()
			}
			break
		}
		if !ok {
			m.mu.Lock()
			m.closed = true
			m.mu.Unlock()
			break
		}

		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				break
			}
		}

		sub, err := m.expand(subCtx, v)
		if err != nil {
			m.release()
			m.opts.metrics.StreamError(m.opts.name, "expand")
			m.opts.log().Warn().Err(err).Msg("expand failed, element dropped")
			continue
		}

		m.mu.Lock()
		id := m.nextID
		m.nextID++
		m.active[id] = sub
		m.mu.Unlock()
		m.wg.Add(1)
		go m.drain(subCtx, id, sub, out)
	}

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.log().Debug().Bool("upstream_ended", m.closed).Int("subsequences", m.nextID).Msg("merge finished")
	return m.err
}

func (m *mergeMap[T, U]) drain(ctx context.Context, id int, sub Source[U], out channel.BackpressureChannel[U]) {
	m.opts.metrics.SubsequenceStarted(m.opts.name)
	defer func() {
		_ = sub.Close()
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		m.release()
		m.opts.metrics.SubsequenceFinished(m.opts.name)
		m.wg.Done()
	}()

	for {
		v, ok, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.opts.metrics.StreamError(m.opts.name, "subsequence")
				m.opts.log().Warn().Err(err).Msg("sub-sequence failed")
			}
			return
		}
		if !ok {
			return
		}
		if err := out.Send(ctx, v); err != nil {
			return
		}
		m.opts.metrics.StreamElement(m.opts.name)
	}
}

func (m *mergeMap[T, U]) release() {
	if m.limiter != nil {
		m.limiter.Release()
	}
}

func (m *mergeMap[T, U]) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// SwitchMap expands every upstream element into a sub-sequence, keeping
// only the newest one alive: when an element arrives, the sub-sequence
// currently being drained is cancelled and closed, and anything it had
// not yet emitted is discarded. No element of a superseded sub-sequence
// is emitted after the expansion of its successor has begun.
//
// A failing sub-sequence or expand call is logged and the stage carries
// on with the next upstream element. Upstream end and failure are handled
// as in MergeMap: the current sub-sequence drains first unless
// WithEagerCancel is set.
func SwitchMap[T, U any](src Source[T], expand func(context.Context, T) (Source[U], error), opts ...Option) Source[U] {
	o := buildOptions("switchMap", opts)
	s := &switchMap[T, U]{src: src, expand: expand, opts: o}
	return newDriven(o.highWaterMark, o, src.Close, s.run)
}

type switchMap[T, U any] struct {
	src    Source[T]
	expand func(context.Context, T) (Source[U], error)
	opts   options

	mu      sync.Mutex
	current *inner[U]
	closed  bool
	err     error
}

// inner is one sub-sequence owned by a SwitchMap.
type inner[U any] struct {
	sub    Source[U]
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *switchMap[T, U]) run(ctx context.Context, out channel.BackpressureChannel[U]) error {
	defer func() {
		if cur := s.swap(nil); cur != nil {
			cur.cancel()
			<-cur.done
		}
	}()

	for {
		v, ok, err := s.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			if s.opts.eagerCancel {
				if cur := s.swap(nil); cur != nil {
					cur.cancel()
					<-cur.done
				}
			}
			break
		}
		if !ok {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			break
		}

		if prev := s.swap(nil); prev != nil {
			select {
			case <-prev.done:
			default:
				s.opts.metrics.SubsequenceSwitched(s.opts.name)
			}
			prev.cancel()
			<-prev.done
		}

		subCtx, cancel := context.WithCancel(ctx)
		sub, err := s.expand(subCtx, v)
		if err != nil {
			cancel()
			s.opts.metrics.StreamError(s.opts.name, "expand")
			s.opts.log().Warn().Err(err).Msg("expand failed, element dropped")
			continue
		}

		in := &inner[U]{sub: sub, cancel: cancel, done: make(chan struct{})}
		s.swap(in)
		go s.drain(subCtx, in, out)
	}

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		<-cur.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.log().Debug().Bool("upstream_ended", s.closed).Msg("switch finished")
	return s.err
}

func (s *switchMap[T, U]) swap(next *inner[U]) *inner[U] {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = next
	return prev
}

func (s *switchMap[T, U]) isCurrent(in *inner[U]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == in
}

func (s *switchMap[T, U]) drain(ctx context.Context, in *inner[U], out channel.BackpressureChannel[U]) {
	s.opts.metrics.SubsequenceStarted(s.opts.name)
	defer func() {
		_ = in.sub.Close()
		in.cancel()
		s.opts.metrics.SubsequenceFinished(s.opts.name)
		close(in.done)
	}()

	for {
		v, ok, err := in.sub.Next(ctx)
		if !s.isCurrent(in) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				s.opts.metrics.StreamError(s.opts.name, "subsequence")
				s.opts.log().Warn().Err(err).Msg("sub-sequence failed")
			}
			return
		}
		if !ok {
			return
		}
		if err := out.Send(ctx, v); err != nil {
			return
		}
		s.opts.metrics.StreamElement(s.opts.name)
	}
}
