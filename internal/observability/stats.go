package observability

import (
	"sync"
	"time"
)

// RunMetrics is the process-wide view of scrape run health.
type RunMetrics struct {
	LastRunAt           *time.Time        `json:"last_run_at,omitempty"`
	LastSuccessAt       *time.Time        `json:"last_success_at,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	TotalRuns           uint64            `json:"total_runs"`
	TotalJobsScraped    uint64            `json:"total_jobs_scraped"`
	TotalJobsSaved      uint64            `json:"total_jobs_saved"`
	IsHealthy           bool              `json:"is_healthy"`
	FailureThreshold    int               `json:"failure_threshold"`
	LastError           string            `json:"last_error,omitempty"`
	LastRunSeconds      float64           `json:"last_run_seconds"`
	ErrorsTotal         uint64            `json:"errors_total"`
	ErrorsByType        map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsBySource      map[string]uint64 `json:"errors_by_source,omitempty"`
}

// RunRecord is what a finished run reports to the Tracker.
type RunRecord struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	JobsFetched  int
	JobsSaved    int
	Failed       bool
	Err          error
	SourceErrors map[string]error
}

// Transition describes how a recorded run moved the health state.
type Transition struct {
	ConsecutiveFailures int
	// CrossedThreshold is set only on the run that takes the failure count
	// from below the threshold to at or above it.
	CrossedThreshold bool
	// Recovered is set on the first success after the threshold was reached.
	Recovered bool
	Healthy   bool
}

// Tracker owns RunMetrics. All mutation goes through its methods.
type Tracker struct {
	mu        sync.Mutex
	metrics   RunMetrics
	threshold int
}

func NewTracker(failureThreshold int) *Tracker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	return &Tracker{
		threshold: failureThreshold,
		metrics: RunMetrics{
			IsHealthy:        true,
			FailureThreshold: failureThreshold,
			ErrorsByType:     map[string]uint64{},
			ErrorsBySource:   map[string]uint64{},
		},
	}
}

// RecordRun folds one finished run into the metrics.
func (t *Tracker) RecordRun(r RunRecord) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := &t.metrics
	prev := m.ConsecutiveFailures

	finished := r.FinishedAt
	m.LastRunAt = &finished
	m.TotalRuns++
	m.TotalJobsScraped += uint64(max(r.JobsFetched, 0))
	m.TotalJobsSaved += uint64(max(r.JobsSaved, 0))
	if !r.StartedAt.IsZero() && r.FinishedAt.After(r.StartedAt) {
		m.LastRunSeconds = r.FinishedAt.Sub(r.StartedAt).Seconds()
	}

	for src, err := range r.SourceErrors {
		if err == nil {
			continue
		}
		t.countErrorLocked(Classify(err), src)
	}

	if r.Failed {
		m.ConsecutiveFailures++
		if r.Err != nil {
			m.LastError = r.Err.Error()
			t.countErrorLocked(Classify(r.Err), "run")
		}
	} else {
		m.ConsecutiveFailures = 0
		m.LastSuccessAt = &finished
		m.LastError = ""
	}
	m.IsHealthy = m.ConsecutiveFailures < t.threshold

	return Transition{
		ConsecutiveFailures: m.ConsecutiveFailures,
		CrossedThreshold:    prev < t.threshold && m.ConsecutiveFailures >= t.threshold,
		Recovered:           prev >= t.threshold && m.ConsecutiveFailures == 0,
		Healthy:             m.IsHealthy,
	}
}

// RecordError counts an error outside of a run, such as a failed cleanup.
func (t *Tracker) RecordError(err error, component string) {
	if err == nil {
		return
	}
	t.mu.Lock()
	t.countErrorLocked(Classify(err), component)
	t.mu.Unlock()
}

func (t *Tracker) countErrorLocked(kind, component string) {
	if kind == "" {
		kind = ErrorUnknown
	}
	if component == "" {
		component = "unknown"
	}
	t.metrics.ErrorsTotal++
	t.metrics.ErrorsByType[kind]++
	t.metrics.ErrorsBySource[component]++
}

// SetThreshold changes the failure threshold and re-derives health.
func (t *Tracker) SetThreshold(n int) {
	if n <= 0 {
		n = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = n
	t.metrics.FailureThreshold = n
	t.metrics.IsHealthy = t.metrics.ConsecutiveFailures < n
}

func (t *Tracker) Healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics.IsHealthy
}

// Snapshot returns a copy safe to hand to other goroutines.
func (t *Tracker) Snapshot() RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.metrics
	if t.metrics.LastRunAt != nil {
		v := *t.metrics.LastRunAt
		out.LastRunAt = &v
	}
	if t.metrics.LastSuccessAt != nil {
		v := *t.metrics.LastSuccessAt
		out.LastSuccessAt = &v
	}
	out.ErrorsByType = make(map[string]uint64, len(t.metrics.ErrorsByType))
	for k, v := range t.metrics.ErrorsByType {
		out.ErrorsByType[k] = v
	}
	out.ErrorsBySource = make(map[string]uint64, len(t.metrics.ErrorsBySource))
	for k, v := range t.metrics.ErrorsBySource {
		out.ErrorsBySource[k] = v
	}
	return out
}
