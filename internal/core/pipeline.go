package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/scraper"
	"github.com/baxromumarov/job-ingest/internal/store"
)

const minPoliteDelay = 500 * time.Millisecond

// BuildAdapters creates one adapter per known source, all sharing limiter.
// Sources that are disabled in cfg are still built so a manual run can name them.
func BuildAdapters(cfg *config.Config, limiter *httpx.RateLimiter) ([]scraper.Adapter, error) {
	opts := httpx.ClientOptions{
		RotateUserAgent: cfg.Scraping.UserAgentRotation,
		UserAgent:       cfg.Scraping.UserAgent,
		RespectRobots:   cfg.Scraping.RespectRobotsTxt,
		Timeout:         cfg.Scraping.RequestTimeout(),
		MinPoliteDelay:  min(minPoliteDelay, cfg.Scraping.Delay()),
		MaxPoliteDelay:  cfg.Scraping.Delay(),
	}
	deps := scraper.Deps{
		Client:   httpx.NewClient(limiter, opts),
		Colly:    httpx.NewCollyFetcher(limiter, opts),
		BaseURLs: cfg.Sources.BaseURLs(),
	}

	adapters := make([]scraper.Adapter, 0, len(scraper.AllSources))
	for _, src := range scraper.AllSources {
		a, err := scraper.NewAdapter(src, deps)
		if err != nil {
			return nil, fmt.Errorf("build adapter: %w", err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// NewOrchestratorFromConfig wires a fresh rate limiter and adapter set from
// cfg around the long-lived store, deduplicator and tracker.
func NewOrchestratorFromConfig(cfg *config.Config, gw store.Gateway, dd *dedup.Deduplicator, tracker *observability.Tracker, logger *slog.Logger) (*Orchestrator, error) {
	limiter := httpx.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	adapters, err := BuildAdapters(cfg, limiter)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		tracker.SetThreshold(cfg.Scheduler.FailureAlertThreshold)
	}

	sources := cfg.Sources.EnabledSources()
	if sources == nil {
		sources = []scraper.Source{}
	}
	o := NewOrchestrator(adapters, gw, dd, tracker, OrchestratorConfig{
		MaxJobs:     cfg.Scraping.MaxJobsPerRun,
		Concurrency: cfg.Scraping.ConcurrentRequests,
		RunTimeout:  cfg.Scraping.RunTimeout(),
		Sources:     sources,
		Retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
			Multiplier:  2,
			Jitter:      0.25,
		},
		Logger: logger,
	})
	o.limiter = limiter
	return o, nil
}

// SchedulerConfigFrom maps the scheduling related settings of cfg.
func SchedulerConfigFrom(cfg *config.Config) SchedulerConfig {
	return SchedulerConfig{
		ScrapeEnabled:       cfg.Scraping.Enabled,
		Interval:            cfg.Scraping.Interval(),
		InitialDelay:        cfg.Scraping.InitialDelay(),
		HealthCheckInterval: cfg.Scheduler.HealthCheckInterval(),
		CleanupSchedule:     cfg.Scheduler.CleanupSchedule,
		CleanupAgeDays:      cfg.Scheduler.CleanupAgeDays,
		StopTimeout:         cfg.Scheduler.StopTimeout(),
		NotifyOnSuccess:     cfg.Alerting.NotifyOnSuccess,
	}
}
