package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/scraper"
	"github.com/baxromumarov/job-ingest/internal/store"
)

var (
	ErrAllSourcesFailed = errors.New("all sources failed")
	ErrNoSources        = errors.New("no sources enabled")
	ErrUnknownSource    = errors.New("source not configured")
	// ErrRunAborted marks a run whose caller gave up on it, such as a
	// scheduler stop that ran out of time.
	ErrRunAborted = errors.New("run aborted")
)

// RunOptions narrows a single run. Zero values fall back to the
// orchestrator defaults.
type RunOptions struct {
	MaxJobs int
	Sources []scraper.Source
}

// RunSummary reports one scrape run. JobsSkipped counts unparseable entries
// plus postings the store already had; Duplicates counts postings dropped by
// the in-memory fingerprint filter. An Aborted run saved nothing and was not
// recorded in the metrics.
type RunSummary struct {
	RunID           string                   `json:"run_id"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
	JobsFetched     int                      `json:"jobs_fetched"`
	JobsSaved       int                      `json:"jobs_saved"`
	JobsSkipped     int                      `json:"jobs_skipped"`
	Duplicates      int                      `json:"duplicates"`
	PerSourceCounts map[string]int           `json:"per_source_counts"`
	PerSourceErrors map[string]string        `json:"per_source_errors,omitempty"`
	PersistErr      string                   `json:"persist_error,omitempty"`
	Failed          bool                     `json:"failed"`
	Skipped         bool                     `json:"skipped,omitempty"`
	TimedOut        bool                     `json:"timed_out,omitempty"`
	Aborted         bool                     `json:"aborted,omitempty"`
	Health          observability.Transition `json:"-"`
}

func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

type OrchestratorConfig struct {
	MaxJobs     int
	Concurrency int
	RunTimeout  time.Duration
	Sources     []scraper.Source
	Retry       RetryPolicy
	Now         func() time.Time
	Logger      *slog.Logger
}

// Orchestrator runs adapters concurrently, then deduplicates and persists
// the pooled result.
type Orchestrator struct {
	adapters map[scraper.Source]scraper.Adapter
	store    store.Gateway
	dedup    *dedup.Deduplicator
	tracker  *observability.Tracker
	limiter  *httpx.RateLimiter
	cfg      OrchestratorConfig
}

func NewOrchestrator(adapters []scraper.Adapter, gw store.Gateway, dd *dedup.Deduplicator, tracker *observability.Tracker, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 200
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	byName := make(map[scraper.Source]scraper.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Source()] = a
	}
	if cfg.Sources == nil {
		for _, src := range scraper.AllSources {
			if _, ok := byName[src]; ok {
				cfg.Sources = append(cfg.Sources, src)
			}
		}
	}
	if dd == nil {
		dd = dedup.New(nil)
	}
	return &Orchestrator{adapters: byName, store: gw, dedup: dd, tracker: tracker, cfg: cfg}
}

func (o *Orchestrator) Tracker() *observability.Tracker {
	return o.tracker
}

// RateBucket reports the shared limiter state when one is attached.
func (o *Orchestrator) RateBucket() (httpx.RateBucket, bool) {
	if o.limiter == nil {
		return httpx.RateBucket{}, false
	}
	return o.limiter.Bucket(), true
}

// RecordFailure folds a run that never reached persistence, such as a
// recovered panic, into the tracker.
func (o *Orchestrator) RecordFailure(s *RunSummary, err error) {
	s.Failed = true
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if s.FinishedAt.IsZero() {
		s.FinishedAt = o.cfg.Now()
	}
	if o.tracker != nil {
		s.Health = o.tracker.RecordRun(observability.RunRecord{
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
			Failed:     true,
			Err:        err,
		})
	}
}

// RunOnce performs one complete run and updates the tracker exactly once,
// unless ctx ends before the run could finish. That run is returned as
// Aborted and leaves the tracker untouched.
func (o *Orchestrator) RunOnce(ctx context.Context, opts RunOptions) RunSummary {
	sum := RunSummary{
		RunID:           uuid.NewString(),
		StartedAt:       o.cfg.Now(),
		PerSourceCounts: map[string]int{},
		PerSourceErrors: map[string]string{},
	}
	logger := o.cfg.Logger.With("run_id", sum.RunID)

	maxJobs := opts.MaxJobs
	if maxJobs <= 0 {
		maxJobs = o.cfg.MaxJobs
	}
	sources := opts.Sources
	if len(sources) == 0 {
		sources = o.cfg.Sources
	}

	results := o.fetchAll(ctx, sources, maxJobs, &sum)
	if ctx.Err() != nil {
		return o.aborted(ctx, sum, results, logger)
	}

	sourceErrs := map[string]error{}
	var pool []scraper.NormalizedJob
	failed := 0
	for _, res := range results {
		name := res.Source.String()
		sum.JobsFetched += len(res.Jobs)
		sum.JobsSkipped += res.Skipped
		sum.PerSourceCounts[name] = len(res.Jobs)
		if res.Failed() {
			failed++
			sum.PerSourceErrors[name] = res.Err.Error()
			sourceErrs[name] = res.Err
			logger.Warn("source failed", "source", name, "attempts", res.Attempts, "error", res.Err)
		}
		pool = append(pool, res.Jobs...)
	}

	fresh := o.dedup.Filter(pool)
	sum.Duplicates = len(pool) - len(fresh)
	if len(fresh) > maxJobs {
		o.dedup.Forget(fresh[maxJobs:])
		fresh = fresh[:maxJobs]
	}

	var runErr error
	if len(fresh) > 0 {
		res, err := o.store.UpsertJobs(ctx, fresh)
		if err != nil {
			o.dedup.Forget(fresh)
			if ctx.Err() != nil {
				return o.aborted(ctx, sum, nil, logger)
			}
			sum.PersistErr = err.Error()
			runErr = err
			logger.Error("failed to persist jobs", "count", len(fresh), "error", err)
		} else {
			sum.JobsSaved = res.Created
			sum.JobsSkipped += res.Skipped
		}
	}

	switch {
	case runErr != nil:
	case len(results) == 0:
		runErr = ErrNoSources
	case failed == len(results):
		runErr = fmt.Errorf("%w: %s", ErrAllSourcesFailed, joinErrors(sum.PerSourceErrors))
	}
	sum.Failed = runErr != nil
	sum.FinishedAt = o.cfg.Now()

	if o.tracker != nil {
		sum.Health = o.tracker.RecordRun(observability.RunRecord{
			StartedAt:    sum.StartedAt,
			FinishedAt:   sum.FinishedAt,
			JobsFetched:  sum.JobsFetched,
			JobsSaved:    sum.JobsSaved,
			Failed:       sum.Failed,
			Err:          runErr,
			SourceErrors: sourceErrs,
		})
	}

	logger.Info("scrape run complete",
		"fetched", sum.JobsFetched,
		"saved", sum.JobsSaved,
		"skipped", sum.JobsSkipped,
		"duplicates", sum.Duplicates,
		"failed_sources", failed,
		"timed_out", sum.TimedOut,
		"failed", sum.Failed,
		"duration", sum.Duration(),
	)
	return sum
}

func (o *Orchestrator) aborted(ctx context.Context, sum RunSummary, results []scraper.SourceResult, logger *slog.Logger) RunSummary {
	for _, res := range results {
		sum.JobsFetched += len(res.Jobs)
		sum.PerSourceCounts[res.Source.String()] = len(res.Jobs)
	}
	sum.Aborted = true
	sum.JobsSaved = 0
	sum.FinishedAt = o.cfg.Now()
	logger.Warn("scrape run aborted",
		"fetched", sum.JobsFetched,
		"cause", fmt.Errorf("%w: %w", ErrRunAborted, context.Cause(ctx)),
		"duration", sum.Duration(),
	)
	return sum
}

// fetchAll runs the requested adapters with bounded parallelism and returns
// one result per source in invocation order. When the run timeout or ctx ends
// first, completed results are kept and the rest are reported as timed out.
func (o *Orchestrator) fetchAll(ctx context.Context, sources []scraper.Source, maxJobs int, sum *RunSummary) []scraper.SourceResult {
	if len(sources) == 0 {
		return nil
	}
	budget := max(1, maxJobs/len(sources))

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var mu sync.Mutex
	results := make([]scraper.SourceResult, len(sources))
	done := make([]bool, len(sources))
	set := func(i int, r scraper.SourceResult) {
		mu.Lock()
		results[i], done[i] = r, true
		mu.Unlock()
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)
		for i, src := range sources {
			a, ok := o.adapters[src]
			if !ok {
				set(i, scraper.SourceResult{
					Source: src,
					Err:    &scraper.PermanentError{Source: src, Err: ErrUnknownSource},
				})
				continue
			}
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				set(i, o.fetchOne(runCtx, a, budget))
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-finished:
	case <-runCtx.Done():
		select {
		case <-finished:
		default:
		}
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]scraper.SourceResult, len(sources))
	for i, src := range sources {
		if done[i] {
			out[i] = results[i]
			continue
		}
		sum.TimedOut = true
		cause := context.Cause(runCtx)
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		out[i] = scraper.SourceResult{
			Source: src,
			Err:    &scraper.TransientError{Source: src, Err: fmt.Errorf("run ended before source finished: %w", cause)},
		}
	}
	return out
}

func (o *Orchestrator) fetchOne(ctx context.Context, a scraper.Adapter, budget int) (res scraper.SourceResult) {
	defer func() {
		if p := recover(); p != nil {
			res = scraper.SourceResult{
				Source: a.Source(),
				Err:    &scraper.PermanentError{Source: a.Source(), Err: fmt.Errorf("%w: %v", observability.ErrRunPanicked, p)},
			}
		}
	}()
	return o.cfg.Retry.Run(ctx, a, budget)
}

func joinErrors(errs map[string]string) string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+errs[name])
	}
	return strings.Join(parts, "; ")
}
