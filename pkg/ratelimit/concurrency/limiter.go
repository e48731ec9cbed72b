package concurrency

import (
	"context"
	"sync"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// Limiter is a counting semaphore bounding how many operations, such as
// sub-sequences of a merge stage, may run at the same time.
type Limiter interface {
	// Acquire takes a permit if one is free. It does not block.
	Acquire() bool

	// Wait blocks until a permit is available or ctx is done.
	Wait(ctx context.Context) error

	// Release returns a permit. It panics if nothing is held.
	Release()

	// SetCapacity changes the number of permits. Shrinking below the
	// current usage takes effect as permits are released.
	SetCapacity(capacity int)

	Capacity() int
	Available() int
	InUse() int
}

// Config holds configuration options for creating a new concurrency Limiter.
type Config struct {
	// Capacity is the maximum number of concurrent operations allowed.
	Capacity int

	// Name labels the in-use gauge.
	Name string

	// Metrics receives the in-use gauge. Nil disables it.
	Metrics *metrics.Registry
}

type limiter struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  []chan struct{}
	name     string
	metrics  *metrics.Registry
}

// NewSafe creates a limiter with capacity permits.
func NewSafe(capacity int) (Limiter, error) {
	return NewWithConfigSafe(Config{Capacity: capacity})
}

// NewWithConfigSafe creates a limiter, rejecting a non-positive capacity.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if config.Capacity <= 0 {
		return nil, errors.NewValidationError("concurrency", "capacity", config.Capacity, "capacity must be positive").
			WithHint("capacity determines how many concurrent operations are allowed")
	}
	if config.Name == "" {
		config.Name = "concurrency"
	}
	return &limiter{
		capacity: config.Capacity,
		name:     config.Name,
		metrics:  config.Metrics,
	}, nil
}
