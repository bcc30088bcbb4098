package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/urlutil"
)

const defaultYCombinatorURL = "https://www.ycombinator.com/api/worklist"

type ycCompany struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
	URL  string     `json:"url"`
}

type ycJob struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	SalaryMin   any        `json:"salary_min"`
	SalaryMax   any        `json:"salary_max"`
	JobType     string     `json:"job_type"`
	Skills      []string   `json:"skills"`
	URL         string     `json:"url"`
	CreatedAt   flexString `json:"created_at"`
}

type YCombinatorAdapter struct {
	client *httpx.Client
	base   string
	now    func() time.Time
}

func NewYCombinatorAdapter(client *httpx.Client, base string, now func() time.Time) *YCombinatorAdapter {
	if base == "" {
		base = defaultYCombinatorURL
	}
	if now == nil {
		now = time.Now
	}
	return &YCombinatorAdapter{client: client, base: strings.TrimRight(base, "/"), now: now}
}

func (y *YCombinatorAdapter) Source() Source {
	return SourceYCombinator
}

// Fetch lists companies, then each company's jobs. A company whose jobs
// cannot be fetched is skipped unless the failure is an auth rejection or
// the context ended.
func (y *YCombinatorAdapter) Fetch(ctx context.Context, maxJobs int) SourceResult {
	res := SourceResult{Source: SourceYCombinator}

	var list struct {
		Companies []ycCompany `json:"companies"`
	}
	if err := y.client.GetJSON(ctx, y.base+"/companies", &list); err != nil {
		res.Err = Classify(SourceYCombinator, err)
		return res
	}

	companies := list.Companies
	if maxJobs > 0 && len(companies) > maxJobs {
		companies = companies[:maxJobs]
	}

	for _, c := range companies {
		if maxJobs > 0 && len(res.Jobs) >= maxJobs {
			break
		}
		name := strings.TrimSpace(c.Name)
		if name == "" || c.ID == "" {
			res.Skipped++
			continue
		}

		jobsURL := fmt.Sprintf("%s/jobs?company_id=%s", y.base, url.QueryEscape(string(c.ID)))
		var payload struct {
			Jobs []ycJob `json:"jobs"`
		}
		if err := y.client.GetJSON(ctx, jobsURL, &payload); err != nil {
			if ctx.Err() != nil || isAuthFailure(err) {
				res.Err = Classify(SourceYCombinator, err)
				return res
			}
			slog.Debug("ycombinator company skipped", "company", name, "error", err)
			res.Skipped++
			continue
		}

		for _, j := range payload.Jobs {
			if maxJobs > 0 && len(res.Jobs) >= maxJobs {
				break
			}
			job, ok := j.normalize(name, c.URL, y.now())
			if !ok {
				res.Skipped++
				continue
			}
			res.Jobs = append(res.Jobs, job)
		}
	}
	return res
}

func (j ycJob) normalize(company, companyURL string, now time.Time) (NormalizedJob, bool) {
	title := strings.TrimSpace(j.Title)
	id := strings.TrimSpace(string(j.ID))
	if title == "" || id == "" {
		return NormalizedJob{}, false
	}
	location := strings.TrimSpace(j.Location)
	if location == "" {
		location = "San Francisco, CA"
	}
	jobType := strings.TrimSpace(j.JobType)
	if jobType == "" {
		jobType = "full-time"
	}
	jobURL := j.URL
	if jobURL == "" {
		jobURL = companyURL
	}
	posted, ok := parseDate(string(j.CreatedAt))
	if !ok {
		posted = now.UTC()
	}

	return NormalizedJob{
		SourceID:        id,
		Title:           title,
		CompanyName:     company,
		Location:        location,
		Description:     CleanDescription(j.Description),
		Salary:          NewSalaryRange(j.SalaryMin, j.SalaryMax, "USD"),
		Tags:            normalizeTags(j.Skills),
		PostedAt:        posted,
		Source:          SourceYCombinator,
		URL:             urlutil.Canonical(jobURL),
		JobType:         jobType,
		RemoteType:      InferRemoteType(location),
		ExperienceLevel: InferExperienceLevel(title),
	}, true
}

func isAuthFailure(err error) bool {
	var fe *httpx.FetchError
	return errors.As(err, &fe) && httpx.IsAuthStatus(fe.Status)
}
