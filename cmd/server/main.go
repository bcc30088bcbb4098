package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/baxromumarov/job-ingest/internal/alert"
	"github.com/baxromumarov/job-ingest/internal/api"
	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/core"
	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/observability"
	"github.com/baxromumarov/job-ingest/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
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

	logger := observability.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := store.Open(store.Options{
		Driver:      cfg.Storage.Driver,
		DatabaseURL: cfg.Storage.DatabaseURL,
		BadgerPath:  cfg.Storage.BadgerPath,
		Migrate:     true,
	})
	if err != nil {
		return err
	}
	defer gw.Close()

	// Seed the dedup set so restarts do not re-save what is already stored.
	known, err := gw.KnownFingerprints(ctx)
	if err != nil {
		return err
	}
	dd := dedup.New(known)
	logger.Info("store ready", "driver", cfg.Storage.Driver, "known_jobs", dd.Len())

	tracker := observability.NewTracker(cfg.Scheduler.FailureAlertThreshold)
	notifier := alert.FromConfig(cfg.Alerting, logger)

	ctrl, err := core.NewController(*cfg, gw, dd, tracker, notifier, logger)
	if err != nil {
		return err
	}
	if err := ctrl.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewServer(ctrl, gw, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = ctrl.Stop(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.StopTimeout()+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", "error", err)
	}
	return nil
}
