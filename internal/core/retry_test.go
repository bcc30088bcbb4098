package core

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.25}
	p.jitter = func() float64 { return 0.5 }

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(10))
}

func TestBackoffJitterBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: 0.25}

	p.jitter = func() float64 { return 0 }
	assert.Equal(t, 750*time.Millisecond, p.Backoff(1))
	p.jitter = func() float64 { return 1 }
	assert.Equal(t, 1250*time.Millisecond, p.Backoff(1))

	p.jitter = nil
	for i := 0; i < 50; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	busy := &httpx.FetchError{Status: http.StatusServiceUnavailable}
	a := &fakeAdapter{
		src:  scraper.SourceRemoteOK,
		jobs: []scraper.NormalizedJob{job(scraper.SourceRemoteOK, "1", "Go Dev", "Acme")},
		errs: []error{busy, busy, nil},
	}

	var slept []time.Duration
	p := DefaultRetryPolicy()
	p.jitter = func() float64 { return 0.5 }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res := p.Run(context.Background(), a, 10)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Jobs, 1)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	a := &fakeAdapter{
		src:  scraper.SourceYCombinator,
		errs: []error{&httpx.FetchError{Status: http.StatusUnauthorized}},
	}
	res := noSleepRetry(3).Run(context.Background(), a, 10)

	assert.True(t, scraper.IsPermanent(res.Err))
	assert.Equal(t, 1, res.Attempts)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	a := &fakeAdapter{
		src:  scraper.SourceRemoteOK,
		errs: []error{&httpx.FetchError{Err: context.DeadlineExceeded}},
	}
	res := noSleepRetry(3).Run(context.Background(), a, 10)

	assert.True(t, scraper.IsTransient(res.Err))
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, a.calls.Load())
}

func TestRetryHonoursCancellationDuringBackoff(t *testing.T) {
	a := &fakeAdapter{
		src:  scraper.SourceRemoteOK,
		errs: []error{&httpx.FetchError{Status: http.StatusBadGateway}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultRetryPolicy()
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := p.Run(ctx, a, 10)
	assert.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
}
