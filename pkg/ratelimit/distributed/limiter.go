package distributed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/bucket"
)

// Reservation is the outcome of booking tokens in the shared bucket.
type Reservation struct {
	OK        bool
	Delay     time.Duration
	Tokens    int
	AllowedAt time.Time
	// Local is set when Redis could not be reached and the decision was
	// made by the fallback limiter.
	Local bool
}

// Stats is a snapshot of the shared bucket.
type Stats struct {
	Rate            float64
	Burst           int
	Tokens          float64
	LastRefill      time.Time
	ActiveInstances []string
}

// Config holds configuration for a distributed limiter.
type Config struct {
	// Redis is the coordination backend.
	Redis redis.UniversalClient

	// Key prefixes every Redis key of this limiter. Processes using the
	// same key share one budget.
	Key string

	// Rate is the number of tokens added per second.
	Rate float64

	// Burst is the maximum number of tokens the bucket holds.
	Burst int

	// InstanceID identifies this process in the instance set. A random
	// UUID is used when empty.
	InstanceID string

	// FallbackToLocal serves decisions from a local token bucket with
	// the same rate and burst while Redis is unreachable.
	FallbackToLocal bool

	// Fallback overrides the local limiter used by FallbackToLocal.
	Fallback bucket.Limiter

	// RedisTimeout bounds every Redis round trip.
	RedisTimeout time.Duration

	// KeyTTL is how long idle keys live.
	KeyTTL time.Duration

	// Name labels metrics and log lines.
	Name string

	Metrics *metrics.Registry
	Logger  *zerolog.Logger
}

// DefaultConfig returns a configuration with local fallback enabled.
func DefaultConfig() Config {
	return Config{
		FallbackToLocal: true,
		RedisTimeout:    500 * time.Millisecond,
		KeyTTL:          time.Hour,
		Name:            "distributed",
	}
}

// NewLimiter validates config, fills in defaults and registers this
// instance with the shared bucket.
func NewLimiter(ctx context.Context, config Config) (*Limiter, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)

	if config.FallbackToLocal && config.Fallback == nil {
		local, err := bucket.NewWithConfigSafe(bucket.Config{
			Rate:          bucket.Limit(config.Rate),
			Burst:         config.Burst,
			InitialTokens: -1,
			Name:          config.Name,
			Metrics:       config.Metrics,
		})
		if err != nil {
			return nil, err
		}
		config.Fallback = local
	}

	l := &Limiter{
		config: config,
		keys:   newKeys(config.Key),
		logger: config.Logger.With().Str("limiter", config.Name).Logger(),
	}
	if err := l.register(ctx); err != nil && !config.FallbackToLocal {
		return nil, err
	}
	return l, nil
}

func validateConfig(config Config) error {
	if config.Redis == nil {
		return errors.NewValidationError("distributed", "redis", nil, "redis client is required")
	}
	if config.Key == "" {
		return errors.NewValidationError("distributed", "key", config.Key, "key is required")
	}
	if config.Rate <= 0 {
		return errors.NewValidationError("distributed", "rate", config.Rate, "rate must be positive")
	}
	if config.Burst <= 0 {
		return errors.NewValidationError("distributed", "burst", config.Burst, "burst must be positive")
	}
	return nil
}

func applyConfigDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.RedisTimeout <= 0 {
		config.RedisTimeout = defaults.RedisTimeout
	}
	if config.KeyTTL <= 0 {
		config.KeyTTL = defaults.KeyTTL
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Logger == nil {
		l := log.Logger
		config.Logger = &l
	}
	return config
}

// RedisError wraps a failed Redis round trip.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis error in " + e.Operation + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

type keys struct {
	tokens, last, instances string
}

func newKeys(prefix string) keys {
	return keys{
		tokens:    prefix + ":tokens",
		last:      prefix + ":last_refill",
		instances: prefix + ":instances",
	}
}

func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func floatToTime(f float64) time.Time {
	return time.Unix(0, int64(f*1e9))
}
