package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baxromumarov/job-ingest/internal/alert"
	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/scraper"
	"github.com/baxromumarov/job-ingest/internal/store"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func job(src scraper.Source, id, title, company string) scraper.NormalizedJob {
	return scraper.NormalizedJob{
		SourceID:    id,
		Title:       title,
		CompanyName: company,
		Location:    "Remote",
		Description: title,
		PostedAt:    testNow,
		Source:      src,
	}
}

// fakeAdapter returns canned jobs or errors. When block is set, Fetch waits
// for it to close (or for ctx, unless ignoreCtx) before answering; delay
// makes every call take that long unless ctx ends first.
type fakeAdapter struct {
	src       scraper.Source
	jobs      []scraper.NormalizedJob
	errs      []error
	panicMsg  string
	block     chan struct{}
	ignoreCtx bool
	started   chan struct{}
	delay     time.Duration

	calls     atomic.Int32
	startOnce sync.Once
	mu        sync.Mutex
	budgets   []int
	failing   atomic.Bool
}

func (f *fakeAdapter) Source() scraper.Source { return f.src }

func (f *fakeAdapter) Fetch(ctx context.Context, maxJobs int) scraper.SourceResult {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.budgets = append(f.budgets, maxJobs)
	f.mu.Unlock()
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return scraper.SourceResult{Source: f.src, Err: ctx.Err()}
		}
	}
	if f.block != nil {
		if f.ignoreCtx {
			<-f.block
		} else {
			select {
			case <-f.block:
			case <-ctx.Done():
				return scraper.SourceResult{Source: f.src, Err: ctx.Err()}
			}
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.failing.Load() {
		return scraper.SourceResult{Source: f.src, Err: &scraper.PermanentError{Source: f.src, Err: fmt.Errorf("forced failure")}}
	}
	if len(f.errs) > 0 {
		err := f.errs[min(n, len(f.errs))-1]
		if err != nil {
			return scraper.SourceResult{Source: f.src, Err: err}
		}
	}
	return scraper.SourceResult{Source: f.src, Jobs: f.jobs}
}

func (f *fakeAdapter) seenBudgets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.budgets...)
}

// noSleep retry policy keeps tests off the wall clock.
func noSleepRetry(attempts int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = attempts
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

type harness struct {
	store   *store.MemoryStore
	dedup   *dedup.Deduplicator
	tracker *observability.Tracker
	orch    *Orchestrator
}

func newHarness(cfg OrchestratorConfig, adapters ...scraper.Adapter) *harness {
	h := &harness{
		store:   store.NewMemoryStore(func() time.Time { return testNow }),
		dedup:   dedup.New(nil),
		tracker: observability.NewTracker(3),
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = noSleepRetry(3)
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger
	}
	h.orch = NewOrchestrator(adapters, h.store, h.dedup, h.tracker, cfg)
	return h
}

type sentAlert struct {
	event   alert.Event
	details alert.Details
}

type alertRecorder struct {
	mu   sync.Mutex
	sent []sentAlert
}

func (r *alertRecorder) Notify(_ context.Context, e alert.Event, d alert.Details) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentAlert{event: e, details: d})
	return nil
}

func (r *alertRecorder) events() []alert.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alert.Event, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.event)
	}
	return out
}

// panickyStore panics on UpsertJobs.
type panickyStore struct {
	*store.MemoryStore
}

func (panickyStore) UpsertJobs(context.Context, []scraper.NormalizedJob) (store.UpsertResult, error) {
	panic("connection pool corrupted")
}

// blockingStore holds UpsertJobs until release is closed, ignoring ctx.
type blockingStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) UpsertJobs(ctx context.Context, jobs []scraper.NormalizedJob) (store.UpsertResult, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.MemoryStore.UpsertJobs(context.Background(), jobs)
}
