package core

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/baxromumarov/job-ingest/internal/scraper"
)

// RetryPolicy retries transient adapter failures with jittered exponential
// backoff. Permanent failures are returned after the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.25,
	}
}

// Backoff returns the wait before attempt n+1, where n counts from 1.
func (p RetryPolicy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			break
		}
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.jitter != nil {
			r = p.jitter
		}
		d *= 1 + p.Jitter*(2*r()-1)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Run invokes a.Fetch until it succeeds, fails permanently, ctx ends or the
// attempts are used up. The returned result carries the attempt count and a
// classified error.
func (p RetryPolicy) Run(ctx context.Context, a scraper.Adapter, maxJobs int) scraper.SourceResult {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var res scraper.SourceResult
	for n := 1; n <= attempts; n++ {
		res = a.Fetch(ctx, maxJobs)
		res.Source = a.Source()
		res.Attempts = n
		if res.Err == nil {
			return res
		}
		res.Err = scraper.Classify(a.Source(), res.Err)
		if !scraper.IsTransient(res.Err) || n == attempts || ctx.Err() != nil {
			return res
		}
		if err := sleep(ctx, p.Backoff(n)); err != nil {
			return res
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
