package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/baxromumarov/job-ingest/internal/scraper"
)

// Fingerprint identifies a posting across sources: hex SHA-256 of the folded
// title, company name and source id.
type Fingerprint string

const fieldSep = "\x1f"

// FingerprintOf returns the fingerprint of job. Title and company are case
// folded and whitespace collapsed; the source id is only trimmed.
func FingerprintOf(job scraper.NormalizedJob) Fingerprint {
	fold := cases.Fold()
	title := fold.String(strings.Join(strings.Fields(job.Title), " "))
	company := fold.String(strings.Join(strings.Fields(job.CompanyName), " "))
	sum := sha256.Sum256([]byte(title + fieldSep + company + fieldSep + strings.TrimSpace(job.SourceID)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Deduplicator drops postings whose fingerprint has been seen before.
type Deduplicator struct {
	mu    sync.RWMutex
	known map[Fingerprint]struct{}
}

// New returns a Deduplicator seeded with fingerprints that are already persisted.
func New(seed []Fingerprint) *Deduplicator {
	d := &Deduplicator{known: make(map[Fingerprint]struct{}, len(seed))}
	for _, fp := range seed {
		d.known[fp] = struct{}{}
	}
	return d
}

// Filter returns the candidates not seen before, in their original order,
// and marks each kept fingerprint as known.
func (d *Deduplicator) Filter(candidates []scraper.NormalizedJob) []scraper.NormalizedJob {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := make([]scraper.NormalizedJob, 0, len(candidates))
	for _, job := range candidates {
		fp := FingerprintOf(job)
		if _, ok := d.known[fp]; ok {
			continue
		}
		d.known[fp] = struct{}{}
		kept = append(kept, job)
	}
	return kept
}

func (d *Deduplicator) IsKnown(fp Fingerprint) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.known[fp]
	return ok
}

// Forget removes the fingerprints of jobs that were filtered in but never
// persisted, so a later run can pick them up again.
func (d *Deduplicator) Forget(jobs []scraper.NormalizedJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, job := range jobs {
		delete(d.known, FingerprintOf(job))
	}
}

func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.known)
}
