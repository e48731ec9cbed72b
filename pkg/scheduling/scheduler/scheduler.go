package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	runctx "github.com/national-talent-atm/data-retrieval/pkg/common/context"
	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// Job is one unit of scheduled work, such as a full retrieval run.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

// Run calls f.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Entry describes a registered job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

// Config holds scheduler configuration.
type Config struct {
	// Location is the time zone cron specs are evaluated in. Default: Local.
	Location *time.Location

	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration

	// AllowOverlap lets a run start while the previous run of the same job
	// is still going. By default the new run is skipped.
	AllowOverlap bool

	Logger  *zerolog.Logger
	Metrics *metrics.Registry
}

// Scheduler runs named jobs on cron specs. Specs have an optional leading
// seconds field and accept descriptors such as "@daily" or "@every 6h".
// Every run gets a fresh run id, available through the context package's
// RunID, and its outcome is logged and counted.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	config  Config
	logger  zerolog.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	jobs    map[string]*registered
	baseCtx context.Context
	cancel  context.CancelFunc
	running bool
}

type registered struct {
	id   cron.EntryID
	spec string
	job  Job
}

// New creates a stopped scheduler.
func New(config Config) *Scheduler {
	if config.Location == nil {
		config.Location = time.Local
	}
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	logger = logger.With().Str("component", "scheduler").Logger()

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	wrappers := []cron.JobWrapper{cron.Recover(cronLogger{logger})}
	if !config.AllowOverlap {
		wrappers = append(wrappers, cron.SkipIfStillRunning(cronLogger{logger}))
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(wrappers...),
		),
		parser:  parser,
		config:  config,
		logger:  logger,
		metrics: config.Metrics,
		jobs:    make(map[string]*registered),
		baseCtx: context.Background(),
	}
}

// Schedule registers job under name.
func (s *Scheduler) Schedule(name, spec string, job Job) error {
	if name == "" {
		return errors.NewValidationError("scheduler", "name", name, "job name cannot be empty")
	}
	if job == nil {
		return errors.NewValidationError("scheduler", "job", nil, "job cannot be nil")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return errors.NewValidationError("scheduler", "spec", spec, err.Error()).
			WithHint(`use "sec min hour dom month dow", "min hour dom month dow" or a descriptor such as "@daily"`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %q already exists", name)
	}
	id, err := s.cron.AddFunc(spec, func() { _ = s.execute(s.runContext(), name, job) })
	if err != nil {
		return errors.NewOperationError("scheduler", "schedule", err).WithContext("job " + name)
	}
	s.jobs[name] = &registered{id: id, spec: spec, job: job}
	return nil
}

// Remove unregisters a job. A run in progress is not interrupted.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(r.id)
	delete(s.jobs, name)
	return true
}

// RunNow runs a registered job immediately in the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: job %q: %w", name, errors.ErrNotFound)
	}
	return s.execute(ctx, name, r.job)
}

// Entries lists the registered jobs ordered by their next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.jobs))
	for name, r := range s.jobs {
		e := s.cron.Entry(r.id)
		next := e.Next
		if next.IsZero() {
			if sched, err := s.parser.Parse(r.spec); err == nil {
				next = sched.Next(time.Now().In(s.config.Location))
			}
		}
		entries = append(entries, Entry{Name: name, Spec: r.spec, Next: next, Prev: e.Prev})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Next.Equal(entries[j].Next) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Next.Before(entries[j].Next)
	})
	return entries
}

// Start begins firing jobs. Runs started by the scheduler inherit the
// values of ctx and are cancelled when it is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler: already running")
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
	return nil
}

// Stop stops firing jobs, cancels the runs in progress and waits for
// them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	cancel()
	<-done.Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// execute runs job once under a fresh run id.
func (s *Scheduler) execute(ctx context.Context, name string, job Job) error {
	runID := uuid.NewString()
	ctx = runctx.WithRunID(ctx, runID)
	ctx, cancel := runctx.WithTimeoutOrCancel(ctx, s.config.Timeout)
	defer cancel()

	logger := s.logger.With().Str("job", name).Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("run started")

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.JobRun(name, err, elapsed)

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Bool("timed_out", runctx.IsTimedOut(ctx, err)).Msg("run failed")
		return err
	}
	logger.Info().Dur("elapsed", elapsed).Msg("run finished")
	return nil
}

// cronLogger routes robfig/cron's own logging to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
