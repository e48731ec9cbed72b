package distributed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/bucket"
)

// Limiter is a token bucket whose state lives in Redis, so every process
// using the same key draws from one budget. Tokens are booked ahead the
// way bucket.Limiter does it: a caller that has to wait takes its token
// immediately and sleeps, which keeps callers on different processes in
// arrival order.
type Limiter struct {
	config Config
	keys   keys
	logger zerolog.Logger
}

var reserveScript = redis.NewScript(`
local tokens_key = KEYS[1]
local last_key = KEYS[2]
local requested = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local burst = tonumber(ARGV[4])
local max_wait = tonumber(ARGV[5])
local ttl = ARGV[6]

local tokens = tonumber(redis.call('GET', tokens_key) or burst)
local last = tonumber(redis.call('GET', last_key) or now)
tokens = math.min(burst, tokens + math.max(0, now - last) * rate)
last = math.max(last, now)

local remaining = tokens - requested
local delay = 0
if remaining < 0 then
  delay = -remaining / rate
end

local ok = 1
if max_wait >= 0 and delay > max_wait then
  ok = 0
  remaining = tokens
end

redis.call('SET', tokens_key, tostring(remaining), 'PX', ttl)
redis.call('SET', last_key, tostring(last), 'PX', ttl)
return {ok, tostring(remaining), tostring(delay)}
`)

func (l *Limiter) register(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	pipe := l.config.Redis.Pipeline()
	pipe.SAdd(ctx, l.keys.instances, l.config.InstanceID)
	pipe.Expire(ctx, l.keys.instances, l.config.KeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return &RedisError{"register", err}
	}
	return nil
}

// Allow reports whether an event may happen now.
func (l *Limiter) Allow(ctx context.Context) bool {
	return l.AllowN(ctx, 1)
}

// AllowN reports whether n events may happen now, without waiting.
func (l *Limiter) AllowN(ctx context.Context, n int) bool {
	r, err := l.reserve(ctx, n, 0)
	if err != nil {
		if fb := l.fallback(ctx, err); fb != nil {
			return fb.AllowN(n)
		}
		return false
	}
	return r.OK
}

// Wait blocks until an event may happen.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN blocks until n events may happen. It fails fast with
// ErrRateLimited when ctx's deadline is closer than the booked slot.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	maxWait := time.Duration(-1)
	if deadline, ok := ctx.Deadline(); ok {
		maxWait = time.Until(deadline)
	}

	start := time.Now()
	r, err := l.reserve(ctx, n, maxWait)
	if err != nil {
		if fb := l.fallback(ctx, err); fb != nil {
			return fb.WaitN(ctx, n)
		}
		return err
	}
	if !r.OK {
		return fmt.Errorf("%w: %s needs %v", errors.ErrRateLimited, l.config.Name, r.Delay)
	}
	defer func() { l.config.Metrics.RateLimitWaited(l.config.Name, time.Since(start)) }()

	if r.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		// the booked token is not returned; it expires with the debt
		return ctx.Err()
	}
}

// Reserve books n tokens however long that takes.
func (l *Limiter) Reserve(ctx context.Context, n int) (*Reservation, error) {
	r, err := l.reserve(ctx, n, -1)
	if err != nil {
		if fb := l.fallback(ctx, err); fb != nil {
			lr := fb.ReserveN(n)
			delay := lr.Delay()
			return &Reservation{OK: lr.OK(), Delay: delay, Tokens: n, AllowedAt: time.Now().Add(delay), Local: true}, nil
		}
		return nil, err
	}
	return r, nil
}

// reserve runs the booking script. A negative maxWait books regardless
// of the delay.
func (l *Limiter) reserve(ctx context.Context, n int, maxWait time.Duration) (*Reservation, error) {
	now := time.Now()
	if n <= 0 {
		return &Reservation{OK: true, AllowedAt: now}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	wait := -1.0
	if maxWait >= 0 {
		wait = maxWait.Seconds()
	}

	res, err := reserveScript.Run(ctx, l.config.Redis,
		[]string{l.keys.tokens, l.keys.last},
		n, timeToFloat(now), l.config.Rate, l.config.Burst, wait, l.config.KeyTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, &RedisError{"reserve", err}
	}
	if len(res) != 3 {
		return nil, &RedisError{"reserve", fmt.Errorf("unexpected script result %v", res)}
	}

	ok, _ := res[0].(int64)
	delayText, _ := res[2].(string)
	seconds, err := strconv.ParseFloat(delayText, 64)
	if err != nil {
		return nil, &RedisError{"reserve", err}
	}
	delay := time.Duration(seconds * float64(time.Second))

	return &Reservation{
		OK:        ok == 1,
		Delay:     delay,
		Tokens:    n,
		AllowedAt: now.Add(delay),
	}, nil
}

// fallback logs err and returns the local limiter, or nil when local
// decisions are disabled or ctx itself is done.
func (l *Limiter) fallback(ctx context.Context, err error) bucket.Limiter {
	if !l.config.FallbackToLocal || ctx.Err() != nil {
		return nil
	}
	l.config.Metrics.RateLimitFallback(l.config.Name)
	l.logger.Warn().Err(err).Msg("redis unavailable, using local limiter")
	return l.config.Fallback
}

// Stats reads the shared bucket without changing it.
func (l *Limiter) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	pipe := l.config.Redis.Pipeline()
	tokensCmd := pipe.Get(ctx, l.keys.tokens)
	lastCmd := pipe.Get(ctx, l.keys.last)
	instancesCmd := pipe.SMembers(ctx, l.keys.instances)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, &RedisError{"stats", err}
	}

	stats := &Stats{
		Rate:            l.config.Rate,
		Burst:           l.config.Burst,
		Tokens:          float64(l.config.Burst),
		ActiveInstances: instancesCmd.Val(),
	}
	if v, err := strconv.ParseFloat(tokensCmd.Val(), 64); err == nil {
		stats.Tokens = v
	}
	if v, err := strconv.ParseFloat(lastCmd.Val(), 64); err == nil {
		stats.LastRefill = floatToTime(v)
	}
	return stats, nil
}

// Reset deletes the shared bucket, refilling it for every instance.
func (l *Limiter) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	if err := l.config.Redis.Del(ctx, l.keys.tokens, l.keys.last).Err(); err != nil {
		return &RedisError{"reset", err}
	}
	return nil
}

// Close removes this instance from the instance set. It does not close
// the Redis client.
func (l *Limiter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.RedisTimeout)
	defer cancel()

	if err := l.config.Redis.SRem(ctx, l.keys.instances, l.config.InstanceID).Err(); err != nil {
		return &RedisError{"close", err}
	}
	return nil
}
