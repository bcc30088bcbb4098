package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

// UpsertResult counts how a batch was applied. A job is skipped when a row
// with the same fingerprint already exists.
type UpsertResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Gateway is the persistence boundary of the ingestion pipeline.
type Gateway interface {
	UpsertCompany(ctx context.Context, name string) (int64, error)
	UpsertJobs(ctx context.Context, jobs []scraper.NormalizedJob) (UpsertResult, error)
	KnownFingerprints(ctx context.Context) ([]dedup.Fingerprint, error)
	// DeleteOlderThan removes jobs posted strictly before now minus ageDays.
	DeleteOlderThan(ctx context.Context, ageDays int) (int64, error)
	CountJobs(ctx context.Context) (int64, error)
	Close() error
}

// PersistenceError marks a failed gateway call. The orchestrator treats it as
// fatal for the current run's save step only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsPersistenceError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

var ErrInvalidAge = errors.New("age in days must be positive")

// Cutoff is the instant before which a posting counts as older than ageDays.
// A posting exactly at the cutoff is retained.
func Cutoff(now time.Time, ageDays int) time.Time {
	return now.Add(-time.Duration(ageDays) * 24 * time.Hour)
}

// CompanyWebsite derives a best-guess homepage from a company name.
func CompanyWebsite(name string) string {
	slug := strings.ToLower(name)
	slug = strings.NewReplacer(" ", "", ".", "", ",", "", "'", "").Replace(slug)
	if slug == "" {
		return ""
	}
	return "https://www." + slug + ".com"
}

func companyKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
