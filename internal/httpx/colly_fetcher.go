package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher wraps Colly for HTML listing pages and CSS-based parsing.
// It shares the process RateLimiter with Client and leaves retries to the caller.
type CollyFetcher struct {
	userAgent     string
	timeout       time.Duration
	respectRobots bool
	limiter       *RateLimiter
}

func NewCollyFetcher(limiter *RateLimiter, opts ClientOptions) *CollyFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	return &CollyFetcher{
		userAgent:     opts.UserAgent,
		timeout:       opts.Timeout,
		respectRobots: opts.RespectRobots,
		limiter:       limiter,
	}
}

// Fetch requests rawURL once; register attaches OnHTML/OnResponse callbacks
// to the collector before the request is made.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string, register func(*colly.Collector)) error {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return err
	}
	if err := f.limiter.Acquire(ctx); err != nil {
		return err
	}
	status, err := f.fetchOnce(ctx, target, register)
	if err != nil {
		return &FetchError{URL: target, Status: status, Err: err}
	}
	return nil
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, target string, register func(*colly.Collector)) (int, error) {
	c := f.newCollector()
	if register != nil {
		register(c)
	}

	status := 0
	var reqErr error
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	collyCtx := colly.NewContext()
	collyCtx.Put("ctx", ctx)

	if err := c.Request(http.MethodGet, target, nil, collyCtx, nil); err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return status, ErrRobotsDisallowed
		}
		return status, err
	}
	if ctx.Err() != nil {
		return status, ctx.Err()
	}
	if reqErr != nil {
		return status, reqErr
	}
	if status >= 400 {
		return status, fmt.Errorf("status %d", status)
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, nil
}

func (f *CollyFetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(f.userAgent))
	c.IgnoreRobotsTxt = !f.respectRobots
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		ctx := context.Background()
		if v := r.Ctx.GetAny("ctx"); v != nil {
			if reqCtx, ok := v.(context.Context); ok {
				ctx = reqCtx
			}
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	return c
}

func normalizeURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String(), nil
}
