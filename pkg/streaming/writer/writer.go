package writer

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/channel"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// AsyncWriter buffers writes in memory and hands full buffers to a
// background goroutine that writes them to the underlying writer in
// order. It is an io.WriteCloser, so encoders such as csv.Writer can
// target it directly.
//
// A write to the underlying writer that still fails after the configured
// retries is sticky: every later Write, Flush and Close returns it, so a
// report is never silently truncated.
type AsyncWriter interface {
	io.WriteCloser

	WriteString(s string) (int, error)

	// WriteContext is Write that gives up waiting for queue space when
	// ctx is done.
	WriteContext(ctx context.Context, data []byte) error

	// Flush writes out everything buffered so far and waits for it.
	Flush(ctx context.Context) error

	Stats() Stats
	IsClosed() bool

	// Err returns the sticky write error, if any.
	Err() error
}

// Stats holds counters of an AsyncWriter.
type Stats struct {
	BytesWritten  int64
	WriteCount    int64
	FlushCount    int64
	ErrorCount    int64
	LastFlushTime time.Time
}

// Config holds configuration options for AsyncWriter.
type Config struct {
	// BufferSize is the number of bytes collected before a buffer is
	// handed to the background goroutine. Default: 64KB.
	BufferSize int

	// MaxPending is the number of full buffers that may wait for the
	// background goroutine before Write blocks. Default: 4.
	MaxPending int

	// FlushInterval flushes a partly filled buffer periodically. Zero
	// disables it. Default: 1 second.
	FlushInterval time.Duration

	// MaxRetries is the number of times a failed write is retried.
	// Default: 3.
	MaxRetries int

	// RetryDelay is the pause between retries. Default: 100ms.
	RetryDelay time.Duration

	// CloseUnderlying closes the underlying writer on Close when it is an
	// io.Closer.
	CloseUnderlying bool

	// OnError is called for every write that failed after retries.
	OnError func(error)

	// OnFlush is called after every write to the underlying writer.
	OnFlush func(bytesWritten int, duration time.Duration)

	// Name labels metrics.
	Name string

	Metrics *metrics.Registry
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:    64 * 1024,
		MaxPending:    4,
		FlushInterval: time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		Name:          "writer",
	}
}

// chunk is one unit of work for the background goroutine. done, when
// set, receives the outcome once data and everything before it has been
// written.
type chunk struct {
	data []byte
	done chan error
}

type asyncWriter struct {
	dst    io.Writer
	config Config

	// mu guards buf and closed, and is held while a chunk is queued so
	// chunks reach the queue in write order.
	mu     sync.Mutex
	buf    []byte
	closed bool
	queue  channel.BackpressureChannel[chunk]

	errMu sync.Mutex
	err   error

	statsMu sync.Mutex
	stats   Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an AsyncWriter with the default configuration.
func New(w io.Writer) AsyncWriter {
	return NewWithConfig(w, DefaultConfig())
}

// NewWithConfig creates an AsyncWriter. Zero or negative fields take
// their defaults, except FlushInterval where zero disables the ticker.
func NewWithConfig(w io.Writer, config Config) AsyncWriter {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxPending <= 0 {
		config.MaxPending = defaults.MaxPending
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}

	ctx, cancel := context.WithCancel(context.Background())
	aw := &asyncWriter{
		dst:    w,
		config: config,
		buf:    make([]byte, 0, config.BufferSize),
		queue: channel.NewWithConfig[chunk](channel.Config{
			BufferSize: config.MaxPending,
			Strategy:   channel.Block,
			Name:       config.Name,
			Metrics:    config.Metrics,
		}),
		cancel: cancel,
	}

	aw.wg.Add(1)
	go aw.writerLoop()

	if config.FlushInterval > 0 {
		aw.wg.Add(1)
		go aw.flushLoop(ctx)
	}
	return aw
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	if err := aw.WriteContext(context.Background(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (aw *asyncWriter) WriteString(s string) (int, error) {
	return aw.Write([]byte(s))
}

func (aw *asyncWriter) WriteContext(ctx context.Context, data []byte) error {
	if err := aw.Err(); err != nil {
		return err
	}

	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.closed {
		return ErrWriterClosed
	}
	if len(data) == 0 {
		return nil
	}

	aw.buf = append(aw.buf, data...)
	aw.updateStats(func(s *Stats) { s.WriteCount++ })

	if len(aw.buf) < aw.config.BufferSize {
		return nil
	}
	return aw.enqueue(ctx, nil)
}

func (aw *asyncWriter) Flush(ctx context.Context) error {
	done := make(chan error, 1)

	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return ErrWriterClosed
	}
	err := aw.enqueue(ctx, done)
	aw.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes what is buffered, waits for the background goroutine and
// returns the sticky write error, if any.
func (aw *asyncWriter) Close() error {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return nil
	}
	aw.closed = true
	_ = aw.enqueue(context.Background(), nil)
	_ = aw.queue.Close()
	aw.mu.Unlock()

	aw.cancel()
	aw.wg.Wait()

	err := aw.Err()
	if c, ok := aw.dst.(io.Closer); ok && aw.config.CloseUnderlying {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (aw *asyncWriter) Stats() Stats {
	aw.statsMu.Lock()
	defer aw.statsMu.Unlock()
	return aw.stats
}

func (aw *asyncWriter) IsClosed() bool {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.closed
}

func (aw *asyncWriter) Err() error {
	aw.errMu.Lock()
	defer aw.errMu.Unlock()
	return aw.err
}

// enqueue hands the current buffer to the background goroutine. An empty
// buffer is only queued when someone waits on done. Must be called with
// aw.mu held.
func (aw *asyncWriter) enqueue(ctx context.Context, done chan error) error {
	if len(aw.buf) == 0 && done == nil {
		return nil
	}
	c := chunk{data: aw.buf, done: done}
	if err := aw.queue.Send(ctx, c); err != nil {
		return err
	}
	aw.buf = make([]byte, 0, aw.config.BufferSize)
	return nil
}

func (aw *asyncWriter) writerLoop() {
	defer aw.wg.Done()

	for {
		c, err := aw.queue.Receive(context.Background())
		if err != nil {
			return
		}

		if len(c.data) > 0 && aw.Err() == nil {
			if err := aw.writeOut(c.data); err != nil {
				aw.errMu.Lock()
				aw.err = err
				aw.errMu.Unlock()
				if aw.config.OnError != nil {
					aw.config.OnError(err)
				}
			}
		}
		if c.done != nil {
			c.done <- aw.Err()
		}
	}
}

func (aw *asyncWriter) flushLoop(ctx context.Context) {
	defer aw.wg.Done()

	ticker := time.NewTicker(aw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			aw.mu.Lock()
			if !aw.closed {
				_ = aw.enqueue(ctx, nil)
			}
			aw.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// writeOut writes data, retrying the unwritten remainder.
func (aw *asyncWriter) writeOut(data []byte) error {
	start := time.Now()
	written := 0
	var lastErr error

	for attempt := 0; attempt <= aw.config.MaxRetries && written < len(data); attempt++ {
		if attempt > 0 {
			time.Sleep(aw.config.RetryDelay)
		}
		n, err := aw.dst.Write(data[written:])
		written += n
		lastErr = err
	}

	duration := time.Since(start)
	aw.config.Metrics.WriterFlush(aw.config.Name, written)
	aw.updateStats(func(s *Stats) {
		s.FlushCount++
		s.BytesWritten += int64(written)
		s.LastFlushTime = time.Now()
		if written < len(data) {
			s.ErrorCount++
		}
	})
	if aw.config.OnFlush != nil {
		aw.config.OnFlush(written, duration)
	}

	if written < len(data) {
		if lastErr == nil {
			lastErr = io.ErrShortWrite
		}
		return lastErr
	}
	return nil
}

func (aw *asyncWriter) updateStats(update func(*Stats)) {
	aw.statsMu.Lock()
	defer aw.statsMu.Unlock()
	update(&aw.stats)
}
