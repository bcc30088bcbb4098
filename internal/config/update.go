package config

import (
	"fmt"

	"github.com/baxromumarov/job-ingest/internal/scraper"
)

// Update is a partial change submitted through the admin surface. Nil fields
// are left untouched.
type Update struct {
	Enabled               *bool           `json:"scraping_enabled"`
	IntervalMinutes       *int            `json:"interval_minutes" validate:"omitempty,min=5"`
	MaxJobsPerRun         *int            `json:"max_jobs_per_run" validate:"omitempty,min=10,max=1000"`
	ConcurrentRequests    *int            `json:"concurrent_requests" validate:"omitempty,min=1,max=50"`
	DelayBetweenRequests  *float64        `json:"delay_between_requests" validate:"omitempty,gte=0,lte=60"`
	RequestsPerMinute     *float64        `json:"requests_per_minute" validate:"omitempty,gt=0"`
	BurstSize             *int            `json:"burst_size" validate:"omitempty,min=1"`
	FailureAlertThreshold *int            `json:"failure_alert_threshold" validate:"omitempty,min=1"`
	Sources               map[string]bool `json:"sources"`
}

// Apply validates u and returns a copy of c with it applied. c is not modified.
func (c Config) Apply(u Update) (Config, error) {
	if err := validate.Struct(u); err != nil {
		return c, fmt.Errorf("invalid config update: %w", err)
	}

	out := c
	if u.Enabled != nil {
		out.Scraping.Enabled = *u.Enabled
	}
	if u.IntervalMinutes != nil {
		out.Scraping.IntervalMinutes = *u.IntervalMinutes
	}
	if u.MaxJobsPerRun != nil {
		out.Scraping.MaxJobsPerRun = *u.MaxJobsPerRun
	}
	if u.ConcurrentRequests != nil {
		out.Scraping.ConcurrentRequests = *u.ConcurrentRequests
	}
	if u.DelayBetweenRequests != nil {
		out.Scraping.DelayBetweenRequests = *u.DelayBetweenRequests
	}
	if u.RequestsPerMinute != nil {
		out.RateLimit.RequestsPerMinute = *u.RequestsPerMinute
	}
	if u.BurstSize != nil {
		out.RateLimit.BurstSize = *u.BurstSize
	}
	if u.FailureAlertThreshold != nil {
		out.Scheduler.FailureAlertThreshold = *u.FailureAlertThreshold
	}
	for name, enabled := range u.Sources {
		src, err := scraper.ParseSource(name)
		if err != nil {
			return c, fmt.Errorf("invalid config update: %w", err)
		}
		out.Sources.ptr(src).Enabled = enabled
	}

	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.Enabled == nil && u.IntervalMinutes == nil && u.MaxJobsPerRun == nil &&
		u.ConcurrentRequests == nil && u.DelayBetweenRequests == nil &&
		u.RequestsPerMinute == nil && u.BurstSize == nil &&
		u.FailureAlertThreshold == nil && len(u.Sources) == 0
}
