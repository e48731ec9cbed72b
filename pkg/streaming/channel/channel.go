package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// BackpressureStrategy defines how the channel handles backpressure when full.
type BackpressureStrategy int

const (
	// Block strategy blocks the producer until space is available.
	Block BackpressureStrategy = iota

	// Drop strategy drops the newest message when buffer is full.
	Drop

	// DropOldest strategy drops the oldest message when buffer is full.
	DropOldest

	// Error strategy returns an error when buffer is full.
	Error
)

func (s BackpressureStrategy) String() string {
	switch s {
	case Block:
		return "block"
	case Drop:
		return "drop"
	case DropOldest:
		return "drop_oldest"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrChannelFull is returned when the channel buffer is full and strategy is Error.
var ErrChannelFull = errors.New("channel buffer is full")

// ErrChannelClosed is returned when attempting to operate on a closed channel,
// and by Receive once a normally closed channel has been drained.
var ErrChannelClosed = errors.New("channel is closed")

// BackpressureChannel is a bounded queue between one or more producers and
// a consumer. Closing it with an error hands that error to the consumer
// after every buffered value has been received.
type BackpressureChannel[T any] interface {
	// Send sends a value to the channel, applying the configured strategy
	// when no buffer space or waiting receiver is available.
	Send(ctx context.Context, value T) error

	// TrySend attempts to send a value without blocking.
	TrySend(value T) error

	// Receive returns the next value. After Close it drains the buffer and
	// then returns ErrChannelClosed, or the error given to CloseWithError.
	Receive(ctx context.Context) (T, error)

	// TryReceive attempts to receive a value without blocking.
	TryReceive() (T, bool, error)

	// Close closes the channel for sending.
	Close() error

	// CloseWithError closes the channel and records err as its terminal error.
	CloseWithError(err error) error

	// IsClosed returns true if the channel is closed.
	IsClosed() bool

	// Len returns the current number of buffered elements.
	Len() int

	// Cap returns the buffer capacity.
	Cap() int

	// Stats returns channel statistics.
	Stats() Stats
}

// Stats holds statistics about channel usage.
type Stats struct {
	SendCount         int64
	ReceiveCount      int64
	DroppedCount      int64
	BlockedSends      int64
	BufferUtilization float64
	LastSendTime      time.Time
	LastReceiveTime   time.Time
}

// Config holds configuration for BackpressureChannel.
type Config struct {
	// BufferSize is the number of values held before the strategy applies.
	// Zero makes every send a hand-off to a waiting receiver.
	BufferSize int

	// Strategy defines how backpressure is handled.
	Strategy BackpressureStrategy

	// OnDrop is called when a message is dropped (for Drop/DropOldest strategies).
	OnDrop func(value interface{})

	// OnBlock is called when a send operation blocks (for Block strategy).
	OnBlock func()

	// Name labels backpressure metrics.
	Name string

	// Metrics receives blocked and dropped events. Nil disables them.
	Metrics *metrics.Registry
}

// DefaultConfig returns a blocking, unbuffered configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 0,
		Strategy:   Block,
	}
}

type backpressureChannel[T any] struct {
	config Config
	ch     chan T
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error

	// serializes DropOldest evictions
	evictMu sync.Mutex

	sendCount    atomic.Int64
	receiveCount atomic.Int64
	droppedCount atomic.Int64
	blockedSends atomic.Int64
	lastSend     atomic.Int64
	lastReceive  atomic.Int64
}

// New creates a blocking channel with the given buffer size.
func New[T any](bufferSize int) BackpressureChannel[T] {
	config := DefaultConfig()
	config.BufferSize = bufferSize
	return NewWithConfig[T](config)
}

// NewWithConfig creates a channel from config. Negative buffer sizes are
// treated as zero.
func NewWithConfig[T any](config Config) BackpressureChannel[T] {
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	if config.Name == "" {
		config.Name = "channel"
	}
	return &backpressureChannel[T]{
		config: config,
		ch:     make(chan T, config.BufferSize),
		done:   make(chan struct{}),
	}
}

func (c *backpressureChannel[T]) Send(ctx context.Context, value T) error {
	if c.IsClosed() {
		return ErrChannelClosed
	}

	switch c.config.Strategy {
	case Drop:
		return c.dropSend(value)
	case DropOldest:
		return c.dropOldestSend(value)
	case Error:
		return c.errorSend(value)
	default:
		return c.blockingSend(ctx, value)
	}
}

func (c *backpressureChannel[T]) TrySend(value T) error {
	if c.IsClosed() {
		return ErrChannelClosed
	}
	return c.errorSend(value)
}

func (c *backpressureChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-c.ch:
		c.received()
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		select {
		case v := <-c.ch:
			c.received()
			return v, nil
		default:
			return zero, c.terminal()
		}
	}
}

func (c *backpressureChannel[T]) TryReceive() (T, bool, error) {
	var zero T

	select {
	case v := <-c.ch:
		c.received()
		return v, true, nil
	default:
	}
	if c.IsClosed() {
		return zero, false, c.terminal()
	}
	return zero, false, nil
}

func (c *backpressureChannel[T]) Close() error {
	return c.CloseWithError(nil)
}

func (c *backpressureChannel[T]) CloseWithError(err error) error {
	closed := false
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.done)
		closed = true
	})
	if !closed {
		return ErrChannelClosed
	}
	return nil
}

func (c *backpressureChannel[T]) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *backpressureChannel[T]) Len() int { return len(c.ch) }

func (c *backpressureChannel[T]) Cap() int { return cap(c.ch) }

func (c *backpressureChannel[T]) Stats() Stats {
	stats := Stats{
		SendCount:    c.sendCount.Load(),
		ReceiveCount: c.receiveCount.Load(),
		DroppedCount: c.droppedCount.Load(),
		BlockedSends: c.blockedSends.Load(),
	}
	if cap(c.ch) > 0 {
		stats.BufferUtilization = float64(len(c.ch)) / float64(cap(c.ch))
	}
	if ns := c.lastSend.Load(); ns > 0 {
		stats.LastSendTime = time.Unix(0, ns)
	}
	if ns := c.lastReceive.Load(); ns > 0 {
		stats.LastReceiveTime = time.Unix(0, ns)
	}
	return stats
}

func (c *backpressureChannel[T]) blockingSend(ctx context.Context, value T) error {
	select {
	case c.ch <- value:
		c.sent()
		return nil
	default:
	}

	c.blockedSends.Add(1)
	c.config.Metrics.Backpressure(c.config.Name, "blocked")
	if c.config.OnBlock != nil {
		c.config.OnBlock()
	}

	select {
	case c.ch <- value:
		c.sent()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *backpressureChannel[T]) dropSend(value T) error {
	select {
	case c.ch <- value:
		c.sent()
	default:
		c.dropped(value)
	}
	return nil
}

func (c *backpressureChannel[T]) dropOldestSend(value T) error {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	for {
		select {
		case c.ch <- value:
			c.sent()
			return nil
		default:
		}

		select {
		case old := <-c.ch:
			c.dropped(old)
		default:
			// nothing buffered and nobody receiving
			c.dropped(value)
			return nil
		}
	}
}

func (c *backpressureChannel[T]) errorSend(value T) error {
	select {
	case c.ch <- value:
		c.sent()
		return nil
	default:
		return ErrChannelFull
	}
}

func (c *backpressureChannel[T]) terminal() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrChannelClosed
}

func (c *backpressureChannel[T]) sent() {
	c.sendCount.Add(1)
	c.lastSend.Store(time.Now().UnixNano())
}

func (c *backpressureChannel[T]) received() {
	c.receiveCount.Add(1)
	c.lastReceive.Store(time.Now().UnixNano())
}

func (c *backpressureChannel[T]) dropped(value T) {
	c.droppedCount.Add(1)
	c.config.Metrics.Backpressure(c.config.Name, "dropped")
	if c.config.OnDrop != nil {
		c.config.OnDrop(value)
	}
}
