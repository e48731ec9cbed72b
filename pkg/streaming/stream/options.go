package stream

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/concurrency"
)

// Option configures a stage.
type Option func(*options)

type options struct {
	highWaterMark int
	name          string
	logger        *zerolog.Logger
	metrics       *metrics.Registry
	concurrency   int
	limiter       concurrency.Limiter
	eagerCancel   bool
}

// WithHighWaterMark sets how many produced values a stage may hold before
// it stops pulling from upstream. The default, 0, holds nothing: every
// pull downstream turns into exactly one pull upstream. Negative values
// are treated as 0.
func WithHighWaterMark(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.highWaterMark = n
	}
}

// WithName labels the stage in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used to report isolated sub-sequence
// failures. The global zerolog logger is used otherwise.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithMetrics records element, error and sub-sequence counts into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithConcurrency caps how many MergeMap sub-sequences are drained at
// once. Zero means unbounded.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.concurrency = n
	}
}

// WithLimiter makes MergeMap acquire a slot from lim for every
// sub-sequence, so several stages can share one concurrency budget.
// It takes precedence over WithConcurrency.
func WithLimiter(lim concurrency.Limiter) Option {
	return func(o *options) { o.limiter = lim }
}

// WithEagerCancel makes MergeMap and SwitchMap cancel their active
// sub-sequences as soon as upstream fails, instead of letting them drain
// before the failure is surfaced.
func WithEagerCancel() Option {
	return func(o *options) { o.eagerCancel = true }
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := log.Logger
		o.logger = &l
	}
	return o
}

func (o options) log() *zerolog.Logger {
	l := o.logger.With().Str("stage", o.name).Logger()
	return &l
}
