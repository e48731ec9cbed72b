package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// Limit is a rate of events per second. Zero allows no events beyond the
// tokens already in the bucket; Inf allows everything.
type Limit float64

// Inf is the infinite rate limit.
var Inf = Limit(math.Inf(1))

// Every converts a minimum interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Limiter is a token bucket. Tokens are added at the configured rate up
// to the burst size, and every event takes one.
type Limiter interface {
	// Allow reports whether an event may happen now. It does not block.
	Allow() bool

	// AllowN reports whether n events may happen now. It does not block.
	AllowN(n int) bool

	// Wait blocks until an event may happen or ctx is done.
	Wait(ctx context.Context) error

	// WaitN blocks until n events may happen or ctx is done.
	WaitN(ctx context.Context, n int) error

	// Reserve books one event and reports when it may happen.
	Reserve() *Reservation

	// ReserveN books n events and reports when they may happen.
	ReserveN(n int) *Reservation

	SetLimit(limit Limit)
	SetBurst(burst int)
	Limit() Limit
	Burst() int

	// Tokens returns the number of tokens currently available. It is
	// negative while reservations are outstanding.
	Tokens() float64
}

// Reservation is a booking of tokens for an event in the future.
type Reservation struct {
	ok        bool
	timeToAct time.Time
	tokens    int
	lim       *tokenBucket
}

// OK reports whether the tokens could be booked at all.
func (r *Reservation) OK() bool {
	return r.ok
}

// Delay returns how long to wait before acting, using the limiter's clock.
func (r *Reservation) Delay() time.Duration {
	return r.DelayFrom(r.lim.clock.Now())
}

// DelayFrom returns how long after now the reservation may act.
func (r *Reservation) DelayFrom(now time.Time) time.Duration {
	if !r.ok {
		return 0
	}
	return max(r.timeToAct.Sub(now), 0)
}

// Cancel gives the booked tokens back.
func (r *Reservation) Cancel() {
	if r.ok {
		r.lim.refund(r.tokens)
	}
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new Limiter.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Burst is the maximum number of tokens the bucket holds.
	Burst int

	// Clock provides the current time. SystemClock is used when nil.
	Clock Clock

	// InitialTokens is the number of tokens to start with. Negative
	// starts with a full bucket.
	InitialTokens int

	// Name labels the wait-time histogram.
	Name string

	// Metrics receives the time spent in Wait. Nil disables it.
	Metrics *metrics.Registry
}

type tokenBucket struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
	name       string
	metrics    *metrics.Registry
}

// NewSafe creates a limiter with a full bucket.
func NewSafe(rate Limit, burst int) (Limiter, error) {
	return NewWithConfigSafe(Config{Rate: rate, Burst: burst, InitialTokens: -1})
}

// NewPacer creates a limiter that lets at most one event through every
// interval, with no bursts. The first event passes immediately.
func NewPacer(interval time.Duration, name string, reg *metrics.Registry) (Limiter, error) {
	if interval <= 0 {
		return nil, errors.NewValidationError("bucket", "interval", interval, "interval must be positive")
	}
	return NewWithConfigSafe(Config{
		Rate:          Every(interval),
		Burst:         1,
		InitialTokens: 1,
		Name:          name,
		Metrics:       reg,
	})
}

// NewWithConfigSafe creates a limiter, rejecting a negative rate or a
// non-positive burst.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if config.Rate < 0 {
		return nil, errors.NewValidationError("bucket", "rate", config.Rate, "rate cannot be negative").
			WithHint("use 0 to allow only the initial tokens, or bucket.Inf for no limit")
	}
	if config.Burst <= 0 {
		return nil, errors.NewValidationError("bucket", "burst", config.Burst, "burst must be positive").
			WithHint("use 1 to pace requests at a fixed interval")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Name == "" {
		config.Name = "bucket"
	}

	tokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 || config.InitialTokens > config.Burst {
		tokens = float64(config.Burst)
	}

	return &tokenBucket{
		limit:      config.Rate,
		burst:      config.Burst,
		tokens:     tokens,
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
		name:       config.Name,
		metrics:    config.Metrics,
	}, nil
}
