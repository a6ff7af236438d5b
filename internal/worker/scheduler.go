// Package worker runs the periodic maintenance jobs of the recycling pool.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appctx "docnum/internal/core/context"
	"docnum/internal/core/numerator"
	"docnum/pkg/logger"
)

// Job slugs.
const (
	JobPurgeRecycled = "purge_recycled"
	JobPoolGauges    = "pool_gauges"
)

const stopTimeout = 5 * time.Second

// Config controls job schedules. Schedules use the standard five-field cron
// syntax or descriptors such as "@daily" and "@every 1m"; an empty schedule
// disables the job.
type Config struct {
	PurgeSchedule    string
	RecycleRetention time.Duration
	GaugeSchedule    string
	Location         *time.Location
}

// GaugeFunc publishes pool metrics.
type GaugeFunc func(ctx context.Context) error

// Scheduler drives the maintenance jobs on a cron engine.
type Scheduler struct {
	cfg    Config
	pool   *numerator.RecyclingPool
	gauges GaugeFunc
	clock  numerator.Clock
	log    *logger.Logger

	cron    *cron.Cron
	parser  cron.Parser
	entries map[string]cron.EntryID

	mu      sync.Mutex
	lastRun map[string]time.Time
	rootCtx context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for retention cutoffs.
func WithClock(clock numerator.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// New validates the schedules and registers the jobs. gauges may be nil.
func New(cfg Config, pool *numerator.RecyclingPool, gauges GaugeFunc, log *logger.Logger, opts ...Option) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		cfg:     cfg,
		pool:    pool,
		gauges:  gauges,
		clock:   time.Now,
		log:     log.WithComponent("worker"),
		cron:    cron.New(cron.WithLocation(cfg.Location)),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: make(map[string]cron.EntryID),
		lastRun: make(map[string]time.Time),
		rootCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.PurgeSchedule != "" {
		if cfg.RecycleRetention <= 0 {
			return nil, fmt.Errorf("recycle retention must be positive, got %s", cfg.RecycleRetention)
		}
		if err := s.schedule(JobPurgeRecycled, cfg.PurgeSchedule, s.purgeJob); err != nil {
			return nil, err
		}
	}
	if cfg.GaugeSchedule != "" && gauges != nil {
		if err := s.schedule(JobPoolGauges, cfg.GaugeSchedule, gauges); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) schedule(slug, spec string, fn func(context.Context) error) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", slug, spec, err)
	}
	s.entries[slug] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.execute(slug, fn)
	}))
	return nil
}

// Jobs lists the registered job slugs.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.entries))
	for slug := range s.entries {
		out = append(out, slug)
	}
	return out
}

// Run starts the engine and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.rootCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Infow("scheduler started", "jobs", len(s.entries))

	<-ctx.Done()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(stopTimeout):
		s.log.Warn("timed out waiting for jobs to finish")
	}
	s.log.Info("scheduler stopped")
	return nil
}

// LastRun reports when slug last completed successfully.
func (s *Scheduler) LastRun(slug string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[slug]
	return t, ok
}

func (s *Scheduler) execute(slug string, fn func(context.Context) error) {
	s.mu.Lock()
	ctx := s.rootCtx
	s.mu.Unlock()

	// Each run gets its own trace.
	tc := appctx.NewTraceContext()
	ctx = appctx.WithTrace(ctx, tc)

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.log.Errorw("job failed", "job", slug, "request_id", tc.RequestID, "error", err)
		return
	}
	s.mu.Lock()
	s.lastRun[slug] = s.clock()
	s.mu.Unlock()
	s.log.Debugw("job finished", "job", slug, "request_id", tc.RequestID, "duration", time.Since(start))
}

func (s *Scheduler) purgeJob(ctx context.Context) error {
	_, err := s.PurgeExpired(ctx)
	return err
}

// PurgeExpired drops recycled numbers released longer than the retention ago.
func (s *Scheduler) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.clock()
	n, err := s.pool.PurgeOlderThan(ctx, now, s.cfg.RecycleRetention)
	if err != nil {
		return 0, fmt.Errorf("purge recycled numbers: %w", err)
	}
	if n > 0 {
		s.log.Infow("purged expired recycled numbers",
			"count", n, "cutoff", now.Add(-s.cfg.RecycleRetention))
	}
	return n, nil
}
