package scraper

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/urlutil"
)

const defaultWWRURL = "https://weworkremotely.com/categories/remote-programming-jobs"

type WWRAdapter struct {
	fetcher *httpx.CollyFetcher
	url     string
	now     func() time.Time
}

func NewWWRAdapter(fetcher *httpx.CollyFetcher, listURL string, now func() time.Time) *WWRAdapter {
	if listURL == "" {
		listURL = defaultWWRURL
	}
	if now == nil {
		now = time.Now
	}
	return &WWRAdapter{fetcher: fetcher, url: listURL, now: now}
}

func (w *WWRAdapter) Source() Source {
	return SourceWeWorkRemotely
}

// Fetch scrapes the category listing page. The listing exposes no
// description, so one is composed from the title and company.
func (w *WWRAdapter) Fetch(ctx context.Context, maxJobs int) SourceResult {
	res := SourceResult{Source: SourceWeWorkRemotely}
	base, err := url.Parse(w.url)
	if err != nil {
		res.Err = &PermanentError{Source: SourceWeWorkRemotely, Err: ErrInvalidConfig}
		return res
	}
	now := w.now()

	err = w.fetcher.Fetch(ctx, w.url, func(c *colly.Collector) {
		c.OnHTML("section.jobs article ul li", func(e *colly.HTMLElement) {
			if maxJobs > 0 && len(res.Jobs) >= maxJobs {
				return
			}
			if e.DOM.HasClass("view-all") {
				return
			}
			job, ok := parseWWRListing(e.DOM, base, now)
			if !ok {
				res.Skipped++
				return
			}
			res.Jobs = append(res.Jobs, job)
		})
	})
	if err != nil {
		res.Err = Classify(SourceWeWorkRemotely, err)
		res.Jobs = nil
	}
	return res
}

func parseWWRListing(li *goquery.Selection, base *url.URL, now time.Time) (NormalizedJob, bool) {
	var link *goquery.Selection
	li.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href, _ := a.Attr("href"); strings.Contains(href, "/remote-jobs/") {
			link = a
			return false
		}
		return true
	})
	if link == nil {
		return NormalizedJob{}, false
	}
	href, _ := link.Attr("href")
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return NormalizedJob{}, false
	}
	jobURL := base.ResolveReference(ref)

	title := strings.TrimSpace(link.Find("span.title").Text())
	company := strings.TrimSpace(link.Find("span.company").First().Text())
	slug := path.Base(strings.TrimRight(jobURL.Path, "/"))
	if title == "" || company == "" || slug == "" || slug == "." || slug == "/" {
		return NormalizedJob{}, false
	}

	location := strings.TrimSpace(link.Find("span.region").Text())
	if location == "" {
		location = "Remote"
	}
	posted := now.UTC()
	if dt, ok := li.Find("time").Attr("datetime"); ok {
		if t, ok := parseDate(dt); ok {
			posted = t
		}
	}

	return NormalizedJob{
		SourceID:        slug,
		Title:           title,
		CompanyName:     company,
		Location:        location,
		Description:     title + " at " + company,
		PostedAt:        posted,
		Source:          SourceWeWorkRemotely,
		URL:             urlutil.Canonical(jobURL.String()),
		JobType:         "full-time",
		RemoteType:      "remote",
		ExperienceLevel: InferExperienceLevel(title),
	}, true
}
