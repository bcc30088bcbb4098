package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/baxromumarov/job-ingest/internal/alert"
	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/scraper"
	"github.com/baxromumarov/job-ingest/internal/store"
)

// MinCleanupAgeDays is the smallest age an admin cleanup may use.
const MinCleanupAgeDays = 30

const maxManualJobs = 1000

var (
	ErrCleanupTooRecent = fmt.Errorf("cleanup age must be at least %d days", MinCleanupAgeDays)
	ErrInvalidMaxJobs   = fmt.Errorf("max_jobs must be between 1 and %d", maxManualJobs)
)

// Status is the admin view of the scheduler plus the settings it is running
// with. Staged changes show up here only after a restart.
type Status struct {
	SchedulerStatus
	IntervalMinutes int      `json:"interval_minutes"`
	MaxJobsPerRun   int      `json:"max_jobs_per_run"`
	EnabledSources  []string `json:"enabled_sources"`
	RestartRequired bool     `json:"restart_required"`
}

type Metrics struct {
	observability.RunMetrics
	RateLimit *httpx.RateBucket `json:"rate_limit,omitempty"`
}

// Settings is the part of the configuration the admin surface exposes.
type Settings struct {
	Scraping              config.ScrapingConfig  `json:"scraping"`
	Sources               config.SourcesConfig   `json:"sources"`
	RateLimit             config.RateLimitConfig `json:"rate_limit"`
	FailureAlertThreshold int                    `json:"failure_alert_threshold"`
}

// ConfigView holds the staged settings. While a restart is pending, Active
// holds the settings the scheduler is still running with.
type ConfigView struct {
	Settings
	Active          *Settings `json:"active,omitempty"`
	RestartRequired bool      `json:"restart_required"`
}

func settingsOf(cfg *config.Config) Settings {
	return Settings{
		Scraping:              cfg.Scraping,
		Sources:               cfg.Sources,
		RateLimit:             cfg.RateLimit,
		FailureAlertThreshold: cfg.Scheduler.FailureAlertThreshold,
	}
}

// OrchestratorFactory builds an orchestrator for a configuration.
type OrchestratorFactory func(cfg *config.Config) (*Orchestrator, error)

// Controller is the admin surface over the scheduler. Config updates are
// staged and take effect on the next restart.
type Controller struct {
	sched   *Scheduler
	tracker *observability.Tracker
	build   OrchestratorFactory
	logger  *slog.Logger

	// restartMu serializes restarts so mu is never held across a Stop.
	restartMu sync.Mutex

	mu      sync.Mutex
	cfg     config.Config
	running config.Config
	active  *Orchestrator
	staged  uint64
	applied uint64
}

func NewController(cfg config.Config, gw store.Gateway, dd *dedup.Deduplicator, tracker *observability.Tracker, notifier alert.Notifier, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	build := func(c *config.Config) (*Orchestrator, error) {
		return NewOrchestratorFromConfig(c, gw, dd, tracker, logger)
	}
	return newController(cfg, gw, tracker, notifier, build, logger)
}

func newController(cfg config.Config, gw store.Gateway, tracker *observability.Tracker, notifier alert.Notifier, build OrchestratorFactory, logger *slog.Logger) (*Controller, error) {
	orch, err := build(&cfg)
	if err != nil {
		return nil, err
	}
	return &Controller{
		sched:   NewScheduler(orch, gw, notifier, SchedulerConfigFrom(&cfg), logger),
		tracker: tracker,
		build:   build,
		logger:  logger,
		cfg:     cfg,
		running: cfg,
		active:  orch,
	}, nil
}

func (c *Controller) Scheduler() *Scheduler {
	return c.sched
}

func (c *Controller) Start() error {
	return c.sched.Start()
}

func (c *Controller) Stop(ctx context.Context) error {
	return c.sched.Stop(ctx)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	cfg, pending := c.running, c.pendingLocked()
	c.mu.Unlock()

	enabled := []string{}
	for _, src := range cfg.Sources.EnabledSources() {
		enabled = append(enabled, src.String())
	}
	return Status{
		SchedulerStatus: c.sched.Status(),
		IntervalMinutes: cfg.Scraping.IntervalMinutes,
		MaxJobsPerRun:   cfg.Scraping.MaxJobsPerRun,
		EnabledSources:  enabled,
		RestartRequired: pending,
	}
}

func (c *Controller) Metrics() Metrics {
	m := Metrics{RunMetrics: c.tracker.Snapshot()}
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if b, ok := active.RateBucket(); ok {
		m.RateLimit = &b
	}
	return m
}

// TriggerManualRun runs a scrape now. maxJobs of zero uses the configured
// default; sources may use any name ParseSource accepts.
func (c *Controller) TriggerManualRun(ctx context.Context, maxJobs int, sources []string) (RunSummary, error) {
	if maxJobs < 0 || maxJobs > maxManualJobs {
		return RunSummary{}, ErrInvalidMaxJobs
	}
	opts := RunOptions{MaxJobs: maxJobs}
	for _, name := range sources {
		src, err := scraper.ParseSource(name)
		if err != nil {
			return RunSummary{}, err
		}
		opts.Sources = append(opts.Sources, src)
	}
	return c.sched.RunScrape(ctx, "manual", opts), nil
}

func (c *Controller) Config() ConfigView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() ConfigView {
	v := ConfigView{
		Settings:        settingsOf(&c.cfg),
		RestartRequired: c.pendingLocked(),
	}
	if v.RestartRequired {
		active := settingsOf(&c.running)
		v.Active = &active
	}
	return v
}

func (c *Controller) pendingLocked() bool {
	return c.staged != c.applied
}

// UpdateConfig validates and stages u. The running scheduler keeps its
// settings until RestartScheduler.
func (c *Controller) UpdateConfig(u config.Update) (ConfigView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.cfg.Apply(u)
	if err != nil {
		return c.viewLocked(), err
	}
	c.cfg = next
	if !u.Empty() {
		c.staged++
	}
	c.logger.Info("scraping config updated", "restart_required", c.pendingLocked())
	return c.viewLocked(), nil
}

// RestartScheduler stops the scheduler, rebuilds the pipeline from the
// staged configuration and starts it again. Changes staged while the restart
// is in progress stay pending.
func (c *Controller) RestartScheduler(ctx context.Context) error {
	c.restartMu.Lock()
	defer c.restartMu.Unlock()

	c.mu.Lock()
	cfg, gen := c.cfg, c.staged
	c.mu.Unlock()

	if err := c.sched.Stop(ctx); err != nil && !errors.Is(err, ErrStopTimeout) {
		return err
	}
	orch, err := c.build(&cfg)
	if err != nil {
		return fmt.Errorf("rebuild pipeline: %w", err)
	}
	if err := c.sched.Reconfigure(orch, SchedulerConfigFrom(&cfg)); err != nil {
		return err
	}
	if err := c.sched.Start(); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = orch
	c.running = cfg
	c.applied = gen
	c.mu.Unlock()
	c.logger.Info("scheduler restarted")
	return nil
}

// Cleanup removes postings older than ageDays, which must be at least
// MinCleanupAgeDays.
func (c *Controller) Cleanup(ctx context.Context, ageDays int) (int64, error) {
	if ageDays < MinCleanupAgeDays {
		return 0, ErrCleanupTooRecent
	}
	return c.sched.RunCleanup(ctx, ageDays)
}
