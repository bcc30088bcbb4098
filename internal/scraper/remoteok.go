package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/urlutil"
)

const defaultRemoteOKURL = "https://remoteok.com/api"

// RemoteOK API returns a JSON array; the first element is a legal notice.
type remoteOKJob struct {
	Legal       string     `json:"legal"`
	ID          flexString `json:"id"`
	Slug        string     `json:"slug"`
	Epoch       flexString `json:"epoch"`
	Date        string     `json:"date"`
	Company     string     `json:"company"`
	Position    string     `json:"position"`
	Tags        []string   `json:"tags"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	SalaryMin   any        `json:"salary_min"`
	SalaryMax   any        `json:"salary_max"`
	URL         string     `json:"url"`
	ApplyURL    string     `json:"apply_url"`
}

// flexString decodes a JSON string or number into its text form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type RemoteOKAdapter struct {
	client *httpx.Client
	url    string
	now    func() time.Time
}

func NewRemoteOKAdapter(client *httpx.Client, url string, now func() time.Time) *RemoteOKAdapter {
	if url == "" {
		url = defaultRemoteOKURL
	}
	if now == nil {
		now = time.Now
	}
	return &RemoteOKAdapter{client: client, url: url, now: now}
}

func (r *RemoteOKAdapter) Source() Source {
	return SourceRemoteOK
}

func (r *RemoteOKAdapter) Fetch(ctx context.Context, maxJobs int) SourceResult {
	res := SourceResult{Source: SourceRemoteOK}

	var items []json.RawMessage
	if err := r.client.GetJSON(ctx, r.url, &items); err != nil {
		res.Err = Classify(SourceRemoteOK, err)
		return res
	}

	for i, item := range items {
		if maxJobs > 0 && len(res.Jobs) >= maxJobs {
			break
		}
		var raw remoteOKJob
		if err := json.Unmarshal(item, &raw); err != nil {
			res.Skipped++
			continue
		}
		if raw.Legal != "" || (i == 0 && raw.Position == "") {
			continue
		}
		job, ok := raw.normalize(r.now())
		if !ok {
			res.Skipped++
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	return res
}

func (j remoteOKJob) normalize(now time.Time) (NormalizedJob, bool) {
	title := strings.TrimSpace(j.Position)
	company := strings.TrimSpace(j.Company)
	id := strings.TrimSpace(string(j.ID))
	if id == "" {
		id = strings.TrimSpace(j.Slug)
	}
	if title == "" || company == "" || id == "" {
		return NormalizedJob{}, false
	}

	jobURL := j.URL
	if jobURL == "" {
		jobURL = j.ApplyURL
	}
	location := strings.TrimSpace(j.Location)
	if location == "" {
		location = "Remote"
	}

	return NormalizedJob{
		SourceID:        id,
		Title:           title,
		CompanyName:     company,
		Location:        location,
		Description:     CleanDescription(j.Description),
		Salary:          NewSalaryRange(j.SalaryMin, j.SalaryMax, "USD"),
		Tags:            ExtractSkills(j.Tags),
		PostedAt:        parseRemoteOKDate(string(j.Epoch), j.Date, now),
		Source:          SourceRemoteOK,
		URL:             urlutil.Canonical(jobURL),
		JobType:         "full-time",
		RemoteType:      "remote",
		ExperienceLevel: InferExperienceLevel(title),
	}, true
}

// parseRemoteOKDate prefers the epoch field and falls back to the RFC3339
// date, then to now.
func parseRemoteOKDate(epoch, date string, now time.Time) time.Time {
	if secs, err := strconv.ParseInt(strings.TrimSpace(epoch), 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	if t, ok := parseDate(date); ok {
		return t
	}
	return now.UTC()
}

// parseDate accepts RFC3339 (with or without fractional seconds), a bare
// date or a unix timestamp.
func parseDate(val string) (time.Time, bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC(), true
		}
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
		return time.Unix(int64(f), 0).UTC(), true
	}
	return time.Time{}, false
}
