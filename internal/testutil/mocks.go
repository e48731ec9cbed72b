package testutil

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// MockClock is a bucket.Clock that only moves when told to.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock starts a clock at start, or at the current time when start
// is zero.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Advance(d time.Duration) { m.Set(m.Now().Add(d)) }

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// ErrSimulated is returned by a MockWriter set up with SetErrorOnNth.
var ErrSimulated = errors.New("simulated write failure")

// MockWriter stands in for a report file: it records what was written and
// can be made slow or failing.
type MockWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	delay  time.Duration
	// fail decides the outcome of the nth write, 1-based.
	fail func(n int) error
}

// NewMockWriter returns an empty MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writes++
	if mw.delay > 0 {
		time.Sleep(mw.delay)
	}
	if mw.fail != nil {
		if err := mw.fail(mw.writes); err != nil {
			return 0, err
		}
	}
	return mw.buf.Write(p)
}

func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount includes failed writes.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writes
}

// SetWriteDelay makes every write block for delay.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	mw.delay = delay
	mw.mu.Unlock()
}

// SetErrorOnNth fails only the nth write with ErrSimulated.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.setFail(func(i int) error {
		if i == n {
			return ErrSimulated
		}
		return nil
	})
}

// SetAlwaysError fails every write from now on with err.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.setFail(func(int) error { return err })
}

func (mw *MockWriter) setFail(fn func(int) error) {
	mw.mu.Lock()
	mw.fail = fn
	mw.mu.Unlock()
}
