package httpx

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateBucket is a point-in-time view of the shared token bucket.
type RateBucket struct {
	Capacity     int       `json:"capacity"`
	Tokens       float64   `json:"tokens"`
	LastRefillAt time.Time `json:"last_refill_at"`
	// WaitSeconds is how long the next Acquire would block.
	WaitSeconds float64 `json:"wait_seconds"`
}

// RateLimiter is the process-wide token bucket every outbound fetch goes through.
// Tokens refill lazily at requestsPerMinute/60 per second, capped at burst.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	lastRefill time.Time
}

var ErrBurstExceeded = errors.New("rate limiter: request exceeds bucket capacity")

func NewRateLimiter(requestsPerMinute float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60.0)
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(limit, burst),
		burst:      burst,
		now:        time.Now,
		sleep:      sleepWithContext,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is available and consumes it. When the context
// ends first the reserved token is handed back.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := r.now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return ErrBurstExceeded
	}
	r.markRefill(now)
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := r.sleep(ctx, delay); err != nil {
		res.CancelAt(r.now())
		return err
	}
	return nil
}

// markRefill records the instant the bucket last credited elapsed time,
// which x/time/rate does on every reservation.
func (r *RateLimiter) markRefill(at time.Time) {
	r.mu.Lock()
	r.lastRefill = at
	r.mu.Unlock()
}

// waitAt is the delay an Acquire at now would incur, without consuming anything.
func (r *RateLimiter) waitAt(now time.Time) time.Duration {
	tokens := r.limiter.TokensAt(now)
	if tokens >= 1 || r.limiter.Limit() == rate.Inf {
		return 0
	}
	perSecond := float64(r.limiter.Limit())
	if perSecond <= 0 {
		return 0
	}
	return time.Duration((1 - tokens) / perSecond * float64(time.Second))
}

func (r *RateLimiter) Bucket() RateBucket {
	now := r.now()
	tokens := r.limiter.TokensAt(now)
	switch {
	case r.limiter.Limit() == rate.Inf:
		tokens = float64(r.burst)
	case tokens < 0:
		tokens = 0
	}
	r.mu.Lock()
	last := r.lastRefill
	r.mu.Unlock()
	return RateBucket{
		Capacity:     r.burst,
		Tokens:       tokens,
		LastRefillAt: last,
		WaitSeconds:  r.waitAt(now).Seconds(),
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
