package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/config"
	"github.com/national-talent-atm/data-retrieval/internal/logger"
	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/internal/talent"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/distributed"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/writer"
)

// App holds what the commands share: the configuration, the API client
// and the resources to release on exit.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Registry
	Gatherer prometheus.Gatherer

	mu      sync.Mutex
	client  *scopus.Client
	rdb     *redis.Client
	closers []io.Closer
}

// NewApp prepares an App for c. closers are released by Close after
// everything the App opened itself.
func NewApp(ctx context.Context, c *config.Config, closers ...io.Closer) (*App, error) {
	a := &App{
		Config:   c,
		Metrics:  metrics.DefaultRegistry,
		Gatherer: prometheus.DefaultGatherer,
		closers:  closers,
	}
	if c.Metrics.Addr != "" {
		a.serveMetrics(c.Metrics.Addr)
	}
	return a, nil
}

func (a *App) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	a.onClose(closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
}

// Client returns the API client, creating it on first use. It is the
// first point where the API keys are required.
func (a *App) Client(ctx context.Context) (*scopus.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	if err := a.Config.Validate(); err != nil {
		return nil, err
	}

	l := logger.WithComponent(log.Logger, "scopus")
	sc := scopus.Config{
		Keys:    a.Config.Elsevier.Keys,
		BaseURL: a.Config.Elsevier.BaseURL,
		Rate:    a.Config.Elsevier.Rate,
		Retries: a.Config.Elsevier.Retries,
		Timeout: a.Config.Elsevier.Timeout,
		Logger:  &l,
		Metrics: a.Metrics,
	}
	if addr := a.Config.RateLimit.RedisAddr; addr != "" {
		lim, err := a.sharedLimiter(ctx, addr)
		if err != nil {
			return nil, err
		}
		sc.Limiter = lim
	}

	client, err := scopus.New(sc)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// sharedLimiter paces requests across every process using the same
// ratelimit key. Burst one keeps the fixed interval between requests.
func (a *App) sharedLimiter(ctx context.Context, addr string) (ratelimit.Waiter, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	l := logger.WithComponent(log.Logger, "ratelimit")

	dc := distributed.DefaultConfig()
	dc.Redis = rdb
	dc.Key = a.Config.RateLimit.Key
	dc.Rate = a.Config.Elsevier.Rate
	dc.Burst = 1
	dc.Name = a.Config.RateLimit.Key
	dc.Metrics = a.Metrics
	dc.Logger = &l

	lim, err := distributed.NewLimiter(ctx, dc)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("shared rate limiter: %w", err)
	}
	a.onClose(rdb)
	a.onClose(lim)
	return lim, nil
}

// Store opens the configured cache for the report named name. The
// caller closes it when the run is over.
func (a *App) Store(name string, p talent.Paths) (cache.Store, error) {
	cc := a.Config.Cache
	switch cc.Backend {
	case "redis":
		return cache.Namespace(cache.NewRedisStore(cache.RedisConfig{
			Client:  a.cacheRedis(),
			TTL:     cc.TTL,
			Metrics: a.Metrics,
		}), name), nil
	case "sqlite":
		path := a.Config.SQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		db, err := cache.OpenSQLite(path, a.Metrics)
		if err != nil {
			return nil, err
		}
		return cache.Namespace(db, name), nil
	default:
		fs, err := cache.NewFileStore(cache.FileConfig{
			Dir:      p.CacheDir,
			ErrorDir: p.OutputDir,
			Compress: cc.Compress,
			Metrics:  a.Metrics,
		})
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}

func (a *App) cacheRedis() *redis.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rdb == nil {
		a.rdb = redis.NewClient(&redis.Options{Addr: a.Config.Cache.RedisAddr})
		a.closers = append(a.closers, a.rdb)
	}
	return a.rdb
}

// WriteReport creates path and hands run a buffered asynchronous writer
// on it. The file is flushed and closed before WriteReport returns.
func (a *App) WriteReport(path string, run func(io.Writer) (int, error)) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	w := writer.NewWithConfig(f, writer.Config{
		FlushInterval:   time.Second,
		CloseUnderlying: true,
		Name:            "report",
		Metrics:         a.Metrics,
		OnError: func(err error) {
			log.Error().Err(err).Str("path", path).Msg("report write failed")
		},
	})
	n, err := run(w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	return n, err
}

func (a *App) onClose(c io.Closer) {
	a.mu.Lock()
	a.closers = append(a.closers, c)
	a.mu.Unlock()
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// reportLogger is the logger for one run of the report named name.
func reportLogger(ctx context.Context, report, name string) *zerolog.Logger {
	l := logger.FromContext(ctx).With().Str("report", report).Str("config", name).Logger()
	return &l
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
