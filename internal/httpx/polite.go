package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	defaultUserAgent      = "job-ingest-bot/1.0"
	maxBodyBytes          = 16 << 20
)

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

type ClientOptions struct {
	UserAgent       string
	RotateUserAgent bool
	RespectRobots   bool
	Timeout         time.Duration
	MinPoliteDelay  time.Duration
	MaxPoliteDelay  time.Duration
	HTTPClient      *http.Client
}

// Client performs source fetches. Every request, including robots.txt lookups,
// takes a token from the shared RateLimiter first. It does not retry; retry
// policy belongs to the caller.
type Client struct {
	client  *http.Client
	limiter *RateLimiter
	opts    ClientOptions

	mu          sync.Mutex
	robotsCache map[string]*robotstxt.RobotsData
}

func NewClient(limiter *RateLimiter, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		client:      hc,
		limiter:     limiter,
		opts:        opts,
		robotsCache: map[string]*robotstxt.RobotsData{},
	}
}

func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// NewRequest builds an HTTP GET request with context and a safe URL defaulting to https.
func NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	if rawURL == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

func (c *Client) userAgent() string {
	if c.opts.RotateUserAgent {
		return userAgents[rand.IntN(len(userAgents))]
	}
	return c.opts.UserAgent
}

// Get fetches rawURL and returns the body of a 2xx response. Non-2xx statuses
// come back as *FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := NewRequest(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	if c.opts.RespectRobots && !c.allowed(ctx, req.URL) {
		return nil, &FetchError{URL: rawURL, Err: ErrRobotsDisallowed}
	}

	if err := c.politeDelay(ctx); err != nil {
		return nil, err
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	return c.do(req)
}

// GetJSON fetches rawURL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent())
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return body, nil
}

func (c *Client) politeDelay(ctx context.Context) error {
	max := c.opts.MaxPoliteDelay
	if max <= 0 {
		return nil
	}
	min := c.opts.MinPoliteDelay
	if min > max {
		min = max
	}
	d := min
	if span := max - min; span > 0 {
		d += time.Duration(rand.Int64N(int64(span)))
	}
	if d <= 0 {
		return nil
	}
	return sleepWithContext(ctx, d)
}

func (c *Client) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Host
	c.mu.Lock()
	if data, ok := c.robotsCache[host]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("robots.txt status %d", resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.robotsCache[host] = data
	c.mu.Unlock()
	return data, nil
}

func (c *Client) allowed(ctx context.Context, u *url.URL) bool {
	data, err := c.robotsFor(ctx, u)
	if err != nil {
		return true // fail open to avoid blocking everything
	}
	group := data.FindGroup(c.opts.UserAgent)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(strings.TrimSpace(path))
}
