package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

type Event string

const (
	RunSucceeded   Event = "run_succeeded"
	RunFailed      Event = "run_failed"
	HealthDegraded Event = "health_degraded"
	CleanupFailed  Event = "cleanup_failed"
)

// Details is the payload attached to an Event.
type Details struct {
	RunID               string
	At                  time.Time
	Message             string
	ConsecutiveFailures int
	JobsFetched         int
	JobsSaved           int
	SourceErrors        map[string]string
}

// Notifier delivers alert events. Callers log a returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, event Event, d Details) error
}

// Subject is the one-line headline used by every channel.
func Subject(event Event) string {
	switch event {
	case RunSucceeded:
		return "Job scraping completed"
	case RunFailed:
		return "Job scraping is failing"
	case HealthDegraded:
		return "Job scraping health degraded"
	case CleanupFailed:
		return "Job cleanup failed"
	}
	return "Job scraping: " + string(event)
}

// Body renders d as plain text.
func Body(event Event, d Details) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", Subject(event))
	if d.Message != "" {
		fmt.Fprintf(&b, "%s\n", d.Message)
	}
	if !d.At.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", d.At.UTC().Format(time.RFC3339))
	}
	if d.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", d.RunID)
	}
	switch event {
	case RunSucceeded:
		fmt.Fprintf(&b, "Jobs fetched: %d, saved: %d\n", d.JobsFetched, d.JobsSaved)
	case RunFailed, HealthDegraded:
		fmt.Fprintf(&b, "Consecutive failures: %d\n", d.ConsecutiveFailures)
	}
	if len(d.SourceErrors) > 0 {
		names := make([]string, 0, len(d.SourceErrors))
		for name := range d.SourceErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("Errors:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %s\n", name, d.SourceErrors[name])
		}
	}
	return b.String()
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, event Event, d Details) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	if event == RunSucceeded {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "alert",
		"event", string(event),
		"run_id", d.RunID,
		"message", d.Message,
		"consecutive_failures", d.ConsecutiveFailures,
		"jobs_saved", d.JobsSaved,
	)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event, d Details) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
