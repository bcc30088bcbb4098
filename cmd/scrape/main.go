package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/core"
	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/scraper"
	"github.com/baxromumarov/job-ingest/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	maxJobs := flag.Int("max-jobs", 0, "Job cap for this run (config default when 0)")
	sources := flag.String("sources", "", "Comma separated sources to scrape (enabled sources when empty)")
	dryRun := flag.Bool("dry-run", false, "Keep results in memory instead of the configured store")
	flag.Parse()

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	opts := core.RunOptions{MaxJobs: *maxJobs}
	for _, name := range strings.Split(*sources, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		src, err := scraper.ParseSource(name)
		if err != nil {
			logger.Error("invalid source", "error", err)
			os.Exit(2)
		}
		opts.Sources = append(opts.Sources, src)
	}

	storeOpts := store.Options{
		Driver:      cfg.Storage.Driver,
		DatabaseURL: cfg.Storage.DatabaseURL,
		BadgerPath:  cfg.Storage.BadgerPath,
		Migrate:     true,
	}
	if *dryRun {
		storeOpts = store.Options{Driver: "memory"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := scrapeOnce(ctx, cfg, storeOpts, opts, logger)
	if err != nil {
		logger.Error("scrape failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		logger.Error("failed to write summary", "error", err)
		os.Exit(1)
	}
	if sum.Failed || sum.Aborted {
		os.Exit(1)
	}
}

func scrapeOnce(ctx context.Context, cfg *config.Config, storeOpts store.Options, opts core.RunOptions, logger *slog.Logger) (core.RunSummary, error) {
	gw, err := store.Open(storeOpts)
	if err != nil {
		return core.RunSummary{}, err
	}
	defer gw.Close()

	known, err := gw.KnownFingerprints(ctx)
	if err != nil {
		return core.RunSummary{}, err
	}

	tracker := observability.NewTracker(cfg.Scheduler.FailureAlertThreshold)
	orch, err := core.NewOrchestratorFromConfig(cfg, gw, dedup.New(known), tracker, logger)
	if err != nil {
		return core.RunSummary{}, err
	}
	return orch.RunOnce(ctx, opts), nil
}
