package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/baxromumarov/job-ingest/internal/httpx"
)

// Source identifies an external job board.
type Source string

const (
	SourceRemoteOK       Source = "remoteok"
	SourceYCombinator    Source = "ycombinator"
	SourceWellfound      Source = "wellfound"
	SourceOtta           Source = "otta"
	SourceWeWorkRemotely Source = "weworkremotely"
)

// AllSources lists every known source in invocation order.
var AllSources = []Source{
	SourceRemoteOK,
	SourceYCombinator,
	SourceWellfound,
	SourceOtta,
	SourceWeWorkRemotely,
}

func (s Source) String() string {
	return string(s)
}

func (s Source) Valid() bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSource accepts the canonical name case-insensitively, plus a few aliases.
func ParseSource(name string) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch key {
	case "remoteok":
		return SourceRemoteOK, nil
	case "ycombinator", "yc", "workatastartup":
		return SourceYCombinator, nil
	case "wellfound", "angellist":
		return SourceWellfound, nil
	case "otta":
		return SourceOtta, nil
	case "weworkremotely", "wwr":
		return SourceWeWorkRemotely, nil
	}
	return "", fmt.Errorf("unknown source %q", name)
}

type SalaryRange struct {
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// NormalizedJob is one posting in source-independent form.
type NormalizedJob struct {
	SourceID        string       `json:"source_id"`
	Title           string       `json:"title"`
	CompanyName     string       `json:"company_name"`
	Location        string       `json:"location"`
	Description     string       `json:"description"`
	Salary          *SalaryRange `json:"salary,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
	PostedAt        time.Time    `json:"posted_at"`
	Source          Source       `json:"source"`
	URL             string       `json:"url,omitempty"`
	JobType         string       `json:"job_type,omitempty"`
	RemoteType      string       `json:"remote_type,omitempty"`
	ExperienceLevel string       `json:"experience_level,omitempty"`
}

// SourceResult is the outcome of one adapter invocation.
type SourceResult struct {
	Source   Source
	Jobs     []NormalizedJob
	Skipped  int
	Attempts int
	Err      error
}

func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// Adapter fetches and normalizes listings from a single source.
type Adapter interface {
	Source() Source
	Fetch(ctx context.Context, maxJobs int) SourceResult
}

// Deps carries the shared collaborators adapters are built from.
type Deps struct {
	Client   *httpx.Client
	Colly    *httpx.CollyFetcher
	BaseURLs map[Source]string
	Now      func() time.Time
}

func (d Deps) baseURL(src Source, fallback string) string {
	if u := strings.TrimRight(d.BaseURLs[src], "/"); u != "" {
		return u
	}
	return fallback
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewAdapter builds the adapter for src.
func NewAdapter(src Source, deps Deps) (Adapter, error) {
	switch src {
	case SourceRemoteOK:
		if deps.Client == nil {
			return nil, fmt.Errorf("%s: %w", src, ErrMissingClient)
		}
		return NewRemoteOKAdapter(deps.Client, deps.baseURL(src, defaultRemoteOKURL), deps.now), nil
	case SourceYCombinator:
		if deps.Client == nil {
			return nil, fmt.Errorf("%s: %w", src, ErrMissingClient)
		}
		return NewYCombinatorAdapter(deps.Client, deps.baseURL(src, defaultYCombinatorURL), deps.now), nil
	case SourceWellfound:
		return NewWellfoundAdapter(deps.now), nil
	case SourceOtta:
		return NewOttaAdapter(deps.now), nil
	case SourceWeWorkRemotely:
		if deps.Colly == nil {
			return nil, fmt.Errorf("%s: %w", src, ErrMissingClient)
		}
		return NewWWRAdapter(deps.Colly, deps.baseURL(src, defaultWWRURL), deps.now), nil
	}
	return nil, fmt.Errorf("unknown source %q", src)
}

// normalizeTags trims tags, drops empty and case-insensitive duplicate
// entries and sorts the result.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
