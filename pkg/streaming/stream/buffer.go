package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/national-talent-atm/data-retrieval/pkg/streaming/channel"
)

// Buffer decouples src from its consumer with a goroutine that pulls ahead
// until hwm values are held. hwm <= 0 returns src unchanged.
func Buffer[T any](src Source[T], hwm int, opts ...Option) Source[T] {
	o := buildOptions("buffer", opts)
	o.highWaterMark = hwm
	return withBuffer(src, o)
}

func withBuffer[T any](src Source[T], o options) Source[T] {
	if o.highWaterMark <= 0 {
		return src
	}
	// the value held by the blocked sender counts against the mark
	return newDriven(o.highWaterMark-1, o, src.Close, func(ctx context.Context, out channel.BackpressureChannel[T]) error {
		for {
			v, ok, err := src.Next(ctx)
			if err != nil || !ok {
				return err
			}
			if err := out.Send(ctx, v); err != nil {
				return nil
			}
		}
	})
}

// driven is a Source fed by a background goroutine through a bounded
// queue. The goroutine starts on the first Next and lives until it
// returns or the Source is closed; it is not bound to the context of the
// Next call that started it. run owns the upstream while it executes, and
// release is called exactly once after it has returned.
type driven[T any] struct {
	opts    options
	size    int
	run     func(ctx context.Context, out channel.BackpressureChannel[T]) error
	release func() error

	startOnce sync.Once
	out       channel.BackpressureChannel[T]
	cancel    context.CancelFunc
	done      chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newDriven[T any](size int, o options, release func() error, run func(context.Context, channel.BackpressureChannel[T]) error) *driven[T] {
	return &driven[T]{
		opts:    o,
		size:    size,
		run:     run,
		release: release,
		closed:  make(chan struct{}),
	}
}

func (d *driven[T]) start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.out = channel.NewWithConfig[T](channel.Config{
			BufferSize: d.size,
			Name:       d.opts.name,
			Metrics:    d.opts.metrics,
		})
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		d.cancel = cancel
		d.done = make(chan struct{})
		go func() {
			defer close(d.done)
			err := d.run(runCtx, d.out)
			_ = d.release()
			if runCtx.Err() != nil {
				err = ErrStreamClosed
			}
			_ = d.out.CloseWithError(err)
		}()
	})
}

func (d *driven[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	select {
	case <-d.closed:
		return zero, false, ErrStreamClosed
	default:
	}

	d.start(ctx)
	if d.out == nil {
		return zero, false, ErrStreamClosed
	}
	v, err := d.out.Receive(ctx)
	if err != nil {
		if errors.Is(err, channel.ErrChannelClosed) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return v, true, nil
}

func (d *driven[T]) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		started := true
		d.startOnce.Do(func() { started = false })
		if !started {
			err = d.release()
			return
		}
		d.cancel()
		<-d.done
	})
	return err
}
