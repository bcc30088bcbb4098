package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/core"
)

const defaultCleanupDays = 60

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status()
	m := s.ctrl.Metrics()
	status := "healthy"
	if !m.IsHealthy {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            status,
		"scraping_enabled":  st.ScrapeEnabled,
		"scheduler_running": st.Running,
	})
}

func (s *Server) handleJobsHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	total, err := s.jobs.CountJobs(r.Context())
	if err != nil {
		s.logger.Error("jobs health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": now,
		})
		return
	}
	m := s.ctrl.Metrics()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "healthy",
		"total_jobs":           total,
		"database":             "connected",
		"scraping_healthy":     m.IsHealthy,
		"consecutive_failures": m.ConsecutiveFailures,
		"last_success_at":      m.LastSuccessAt,
		"timestamp":            now,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Metrics())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Config())
}

type ManualRunRequest struct {
	NumJobs int      `json:"num_jobs"`
	Sources []string `json:"sources"`
}

func (s *Server) handleManualRun(w http.ResponseWriter, r *http.Request) {
	var req ManualRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if !s.ctrl.Status().ScrapeEnabled {
		respondError(w, http.StatusBadRequest, "Scraping is disabled in configuration")
		return
	}

	sum, err := s.ctrl.TriggerManualRun(r.Context(), req.NumJobs, req.Sources)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sum.Skipped {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"status":  "skipped",
			"message": "A scraping run is already in progress",
		})
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var u config.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := s.ctrl.UpdateConfig(u)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Configuration updated (restart required to take effect)",
		"current_config": view,
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.RestartScheduler(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to restart scheduler: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days := defaultCleanupDays
	if v := r.URL.Query().Get("days_old"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "days_old must be an integer")
			return
		}
		days = parsed
	}

	deleted, err := s.ctrl.Cleanup(r.Context(), days)
	switch {
	case errors.Is(err, core.ErrCleanupTooRecent):
		respondError(w, http.StatusBadRequest, "Cannot delete jobs newer than 30 days")
		return
	case errors.Is(err, core.ErrCleanupInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Cleanup failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Cleanup completed",
		"deleted_jobs": deleted,
		"cutoff_date":  time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339),
	})
}
