package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/core"
)

// Controller is the admin surface the handlers drive.
type Controller interface {
	Status() core.Status
	Metrics() core.Metrics
	Config() core.ConfigView
	TriggerManualRun(ctx context.Context, maxJobs int, sources []string) (core.RunSummary, error)
	UpdateConfig(u config.Update) (core.ConfigView, error)
	RestartScheduler(ctx context.Context) error
	Cleanup(ctx context.Context, ageDays int) (int64, error)
}

// JobCounter reports how many postings are stored.
type JobCounter interface {
	CountJobs(ctx context.Context) (int64, error)
}

type Server struct {
	router *chi.Mux
	ctrl   Controller
	jobs   JobCounter
	logger *slog.Logger
}

func NewServer(ctrl Controller, jobs JobCounter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: chi.NewRouter(),
		ctrl:   ctrl,
		jobs:   jobs,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/jobs/health", s.handleJobsHealth)
		r.Route("/scraping", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handleUpdateConfig)
			r.Post("/manual", s.handleManualRun)
			r.Post("/restart", s.handleRestart)
			r.Post("/cleanup", s.handleCleanup)
		})
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
