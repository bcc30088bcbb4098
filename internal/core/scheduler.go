package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/baxromumarov/job-ingest/internal/alert"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/store"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

const (
	triggerScrape      = "scrape"
	triggerHealthCheck = "health_check"
	triggerCleanup     = "cleanup"
	triggerInitial     = "initial_scrape"

	notifyTimeout = 15 * time.Second
)

var (
	ErrAlreadyRunning    = errors.New("scheduler already running")
	ErrNotStopped        = errors.New("scheduler must be stopped first")
	ErrStopTimeout       = errors.New("timed out waiting for in-flight work")
	ErrCleanupInProgress = errors.New("cleanup already in progress")
	ErrSchedulerStopped  = errors.New("scheduler stopped")
)

type SchedulerConfig struct {
	ScrapeEnabled       bool
	Interval            time.Duration
	InitialDelay        time.Duration
	HealthCheckInterval time.Duration
	CleanupSchedule     string
	CleanupAgeDays      int
	StopTimeout         time.Duration
	NotifyOnSuccess     bool
	Location            *time.Location
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Running        bool                 `json:"scheduler_running"`
	State          State                `json:"state"`
	ScrapeEnabled  bool                 `json:"scrape_enabled"`
	ScrapeInFlight bool                 `json:"scrape_in_flight"`
	NextRunTimes   map[string]time.Time `json:"next_run_times"`
}

// Scheduler drives the recurring scrape, health check and cleanup triggers.
// Each trigger has its own in-flight guard; a trigger that fires while its
// previous run is still going does nothing.
type Scheduler struct {
	store    store.Gateway
	notifier alert.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	orch      *Orchestrator
	cfg       SchedulerConfig
	state     State
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	initial   *time.Timer
	initialAt time.Time
	ctx       context.Context
	cancel    context.CancelCauseFunc
	wg        *sync.WaitGroup

	scraping    atomic.Bool
	checking    atomic.Bool
	cleaning    atomic.Bool
	lastHealthy atomic.Bool
}

func NewScheduler(orch *Orchestrator, gw store.Gateway, notifier alert.Notifier, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = alert.LogNotifier{Logger: logger}
	}
	s := &Scheduler{
		store:    gw,
		notifier: notifier,
		logger:   logger,
		orch:     orch,
		cfg:      cfg,
		state:    StateStopped,
	}
	s.lastHealthy.Store(true)
	return s
}

// Reconfigure swaps the orchestrator and trigger settings. It is only
// allowed while stopped.
func (s *Scheduler) Reconfigure(orch *Orchestrator, cfg SchedulerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return ErrNotStopped
	}
	s.orch = orch
	s.cfg = cfg
	return nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return ErrAlreadyRunning
	}
	s.state = StateStarting

	opts := []cron.Option{
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	}
	if s.cfg.Location != nil {
		opts = append(opts, cron.WithLocation(s.cfg.Location))
	}
	c := cron.New(opts...)
	entries := map[string]cron.EntryID{}

	if s.cfg.ScrapeEnabled && s.cfg.Interval > 0 {
		entries[triggerScrape] = c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
			s.tracked(func(ctx context.Context) { s.RunScrape(ctx, triggerScrape, RunOptions{}) })
		}))
	}
	if s.cfg.HealthCheckInterval > 0 {
		entries[triggerHealthCheck] = c.Schedule(cron.Every(s.cfg.HealthCheckInterval), cron.FuncJob(func() {
			s.tracked(func(context.Context) { s.RunHealthCheck() })
		}))
	}
	if s.cfg.CleanupSchedule != "" {
		ageDays := s.cfg.CleanupAgeDays
		id, err := c.AddFunc(s.cfg.CleanupSchedule, func() {
			s.tracked(func(ctx context.Context) { _, _ = s.RunCleanup(ctx, ageDays) })
		})
		if err != nil {
			s.state = StateStopped
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.cfg.CleanupSchedule, err)
		}
		entries[triggerCleanup] = id
	}

	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	s.wg = &sync.WaitGroup{}
	s.cron = c
	s.entries = entries
	if tracker := s.orch.Tracker(); tracker != nil {
		s.lastHealthy.Store(tracker.Healthy())
	} else {
		s.lastHealthy.Store(true)
	}

	if s.cfg.ScrapeEnabled {
		s.initialAt = time.Now().Add(s.cfg.InitialDelay)
		s.initial = time.AfterFunc(s.cfg.InitialDelay, func() {
			s.tracked(func(ctx context.Context) { s.RunScrape(ctx, triggerInitial, RunOptions{}) })
		})
	}

	c.Start()
	s.state = StateRunning
	s.logger.Info("scheduler started",
		"scrape_enabled", s.cfg.ScrapeEnabled,
		"interval", s.cfg.Interval,
		"initial_delay", s.cfg.InitialDelay,
		"cleanup_schedule", s.cfg.CleanupSchedule,
	)
	return nil
}

// tracked runs fn with the scheduler context and counts it as in-flight work
// for Stop. It does nothing once the scheduler is stopping.
func (s *Scheduler) tracked(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	ctx, wg := s.ctx, s.wg
	wg.Add(1)
	s.mu.Unlock()

	defer wg.Done()
	fn(ctx)
}

// Stop cancels pending triggers and waits up to the configured timeout for
// in-flight runs to finish. Work still going after that, or after ctx ends,
// is cancelled and reported with ErrStopTimeout. The scheduler ends up
// stopped either way.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	if s.initial != nil {
		s.initial.Stop()
		s.initial = nil
	}
	cronDone := s.cron.Stop()
	cancel := s.cancel
	wg := s.wg
	timeout := s.cfg.StopTimeout
	s.mu.Unlock()

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	waitDone := make(chan struct{})
	go func() {
		<-cronDone.Done()
		wg.Wait()
		close(waitDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case <-waitDone:
	case <-timer.C:
		err = ErrStopTimeout
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err())
	}
	cancel(ErrSchedulerStopped)
	if err != nil {
		s.logger.Warn("scheduler stopped with work still in flight", "error", err)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.cron = nil
	s.entries = nil
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Running:        s.state == StateRunning,
		State:          s.state,
		ScrapeEnabled:  s.cfg.ScrapeEnabled,
		ScrapeInFlight: s.scraping.Load(),
		NextRunTimes:   map[string]time.Time{},
	}
	if s.cron == nil {
		return st
	}
	for name, id := range s.entries {
		if next := s.cron.Entry(id).Next; !next.IsZero() {
			st.NextRunTimes[name] = next
		}
	}
	if s.initial != nil && s.initialAt.After(time.Now()) {
		st.NextRunTimes[triggerInitial] = s.initialAt
	}
	return st
}

// RunScrape performs one orchestrated run unless another is in flight, in
// which case it returns a summary marked Skipped and leaves metrics alone.
func (s *Scheduler) RunScrape(ctx context.Context, trigger string, opts RunOptions) (sum RunSummary) {
	if !s.scraping.CompareAndSwap(false, true) {
		now := time.Now()
		s.logger.Info("scrape already in flight, skipping", "trigger", trigger)
		return RunSummary{StartedAt: now, FinishedAt: now, Skipped: true}
	}
	defer s.scraping.Store(false)

	s.mu.Lock()
	orch := s.orch
	s.mu.Unlock()

	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("scrape run panicked", "trigger", trigger, "panic", p)
			sum = RunSummary{StartedAt: started}
			orch.RecordFailure(&sum, fmt.Errorf("%w: %v", observability.ErrRunPanicked, p))
			s.afterRun(ctx, sum)
		}
	}()

	s.logger.Info("scrape run starting", "trigger", trigger)
	sum = orch.RunOnce(ctx, opts)
	s.afterRun(ctx, sum)
	return sum
}

func (s *Scheduler) afterRun(ctx context.Context, sum RunSummary) {
	h := sum.Health
	switch {
	case h.CrossedThreshold:
		// The failure alert covers this degradation; the health check must
		// not report it a second time.
		s.lastHealthy.Store(false)
		msg := sum.PersistErr
		if msg == "" {
			msg = "scrape runs keep failing"
		}
		s.notify(ctx, alert.RunFailed, alert.Details{
			RunID:               sum.RunID,
			At:                  sum.FinishedAt,
			Message:             msg,
			ConsecutiveFailures: h.ConsecutiveFailures,
			JobsFetched:         sum.JobsFetched,
			SourceErrors:        sum.PerSourceErrors,
		})
	case h.Recovered:
		s.logger.Info("scraping recovered", "run_id", sum.RunID)
	}

	s.mu.Lock()
	notifyOnSuccess := s.cfg.NotifyOnSuccess
	s.mu.Unlock()
	if notifyOnSuccess && !sum.Failed && sum.JobsSaved > 0 {
		s.notify(ctx, alert.RunSucceeded, alert.Details{
			RunID:        sum.RunID,
			At:           sum.FinishedAt,
			Message:      fmt.Sprintf("Saved %d new jobs", sum.JobsSaved),
			JobsFetched:  sum.JobsFetched,
			JobsSaved:    sum.JobsSaved,
			SourceErrors: sum.PerSourceErrors,
		})
	}
}

// RunHealthCheck logs the current metrics and alerts on the transition from
// healthy to unhealthy.
func (s *Scheduler) RunHealthCheck() bool {
	if !s.checking.CompareAndSwap(false, true) {
		s.logger.Info("health check already in flight, skipping")
		return s.lastHealthy.Load()
	}
	defer s.checking.Store(false)

	s.mu.Lock()
	tracker := s.orch.Tracker()
	s.mu.Unlock()
	if tracker == nil {
		return true
	}

	snap := tracker.Snapshot()
	wasHealthy := s.lastHealthy.Swap(snap.IsHealthy)
	s.logger.Info("health check",
		"healthy", snap.IsHealthy,
		"consecutive_failures", snap.ConsecutiveFailures,
		"total_runs", snap.TotalRuns,
		"total_jobs_saved", snap.TotalJobsSaved,
	)
	if wasHealthy && !snap.IsHealthy {
		s.notify(context.Background(), alert.HealthDegraded, alert.Details{
			At:                  time.Now(),
			Message:             snap.LastError,
			ConsecutiveFailures: snap.ConsecutiveFailures,
		})
	}
	return snap.IsHealthy
}

// RunCleanup deletes postings older than ageDays. Failures are logged,
// counted and alerted on but never stop the scheduler.
func (s *Scheduler) RunCleanup(ctx context.Context, ageDays int) (int64, error) {
	if !s.cleaning.CompareAndSwap(false, true) {
		s.logger.Info("cleanup already in flight, skipping")
		return 0, ErrCleanupInProgress
	}
	defer s.cleaning.Store(false)

	deleted, err := s.store.DeleteOlderThan(ctx, ageDays)
	if err != nil {
		s.logger.Error("cleanup failed", "age_days", ageDays, "error", err)
		s.mu.Lock()
		tracker := s.orch.Tracker()
		s.mu.Unlock()
		if tracker != nil {
			tracker.RecordError(err, triggerCleanup)
		}
		s.notify(ctx, alert.CleanupFailed, alert.Details{At: time.Now(), Message: err.Error()})
		return 0, err
	}
	s.logger.Info("cleanup complete", "age_days", ageDays, "deleted", deleted)
	return deleted, nil
}

func (s *Scheduler) notify(ctx context.Context, event alert.Event, d alert.Details) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, event, d); err != nil {
		s.logger.Warn("failed to send alert", "event", string(event), "error", err)
	}
}

// cronLogger routes robfig/cron logging through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
