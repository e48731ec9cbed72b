// Package logger builds the zerolog loggers used by the commands.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	runctx "github.com/national-talent-atm/data-retrieval/pkg/common/context"
	"github.com/national-talent-atm/data-retrieval/pkg/common/validation"
)

// Config contains logging configuration.
type Config struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	NoColor   bool   `mapstructure:"no_color"`
	Timestamp bool   `mapstructure:"timestamp"`
	Caller    bool   `mapstructure:"caller"`
}

// ApplyDefaults fills in empty fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks level and format.
func (c *Config) Validate() error {
	if err := validation.ValidateOneOf("logger", "level", strings.ToLower(c.Level),
		"trace", "debug", "info", "warn", "error", "fatal", "disabled"); err != nil {
		return err
	}
	return validation.ValidateOneOf("logger", "format", strings.ToLower(c.Format), "json", "console")
}

// New creates a logger from cfg. Output is "stdout", "stderr" or a file
// path that is appended to; the returned closer releases that file.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		out, closer = f, f
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.DateTime}
	}

	level, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	ctx := zerolog.New(out).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer, nil
}

// Init builds a logger from cfg and installs it as the global zerolog
// logger, which stages and clients fall back to.
func Init(cfg Config) (io.Closer, error) {
	l, closer, err := New(cfg)
	if err != nil {
		return closer, err
	}
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return closer, nil
}

// FromContext returns the logger attached to ctx, falling back to the
// global one, tagged with the run id when ctx carries one.
func FromContext(ctx context.Context) zerolog.Logger {
	l := *zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled && zerolog.DefaultContextLogger == nil {
		l = log.Logger
	}
	if id := runctx.RunID(ctx); id != "" {
		l = l.With().Str("run_id", id).Logger()
	}
	return l
}

// WithComponent tags l with a component name.
func WithComponent(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
