package store

import (
	"context"
	"sync"
	"time"

	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

// MemoryStore is an in-process Gateway for local runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	companies map[string]int64
	jobs      map[dedup.Fingerprint]scraper.NormalizedJob
	order     []dedup.Fingerprint
	failWith  error
}

var _ Gateway = (*MemoryStore)(nil)

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:       now,
		companies: map[string]int64{},
		jobs:      map[dedup.Fingerprint]scraper.NormalizedJob{},
	}
}

func (m *MemoryStore) UpsertCompany(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapErr("upsert company", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.companyLocked(name), nil
}

func (m *MemoryStore) companyLocked(name string) int64 {
	key := companyKey(name)
	if id, ok := m.companies[key]; ok {
		return id
	}
	id := int64(len(m.companies) + 1)
	m.companies[key] = id
	return id
}

func (m *MemoryStore) UpsertJobs(ctx context.Context, jobs []scraper.NormalizedJob) (UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, wrapErr("upsert jobs", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return UpsertResult{}, wrapErr("upsert jobs", m.failWith)
	}

	var res UpsertResult
	for _, j := range jobs {
		fp := dedup.FingerprintOf(j)
		if _, ok := m.jobs[fp]; ok {
			res.Skipped++
			continue
		}
		m.companyLocked(j.CompanyName)
		m.jobs[fp] = j
		m.order = append(m.order, fp)
		res.Created++
	}
	return res, nil
}

// SetFailure makes subsequent UpsertJobs and DeleteOlderThan calls fail with
// err; nil clears it.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MemoryStore) KnownFingerprints(ctx context.Context) ([]dedup.Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dedup.Fingerprint(nil), m.order...), nil
}

func (m *MemoryStore) DeleteOlderThan(ctx context.Context, ageDays int) (int64, error) {
	if ageDays <= 0 {
		return 0, wrapErr("delete old jobs", ErrInvalidAge)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, wrapErr("delete old jobs", m.failWith)
	}

	cutoff := Cutoff(m.now(), ageDays)
	var deleted int64
	kept := m.order[:0]
	for _, fp := range m.order {
		if m.jobs[fp].PostedAt.Before(cutoff) {
			delete(m.jobs, fp)
			deleted++
			continue
		}
		kept = append(kept, fp)
	}
	m.order = kept
	return deleted, nil
}

func (m *MemoryStore) CountJobs(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.jobs)), nil
}

// Jobs returns stored jobs in insertion order.
func (m *MemoryStore) Jobs() []scraper.NormalizedJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scraper.NormalizedJob, 0, len(m.order))
	for _, fp := range m.order {
		out = append(out, m.jobs[fp])
	}
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}
