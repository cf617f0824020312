package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// Budget names a rate allowance: up to Capacity requests per Window.
type Budget struct {
	Capacity int
	Window   time.Duration
}

// Decision is the outcome of a single non-blocking acquisition attempt.
// When Granted is false, RetryAfter estimates how long until a token is available.
type Decision struct {
	Granted    bool
	RetryAfter time.Duration
}

// Limiter is a token bucket granting up to capacity requests per window.
// The bucket starts full and refills continuously at capacity/window tokens
// per unit time, never exceeding capacity. Safe for concurrent use.
type Limiter struct {
	capacity int
	window   time.Duration
	bucket   *rate.Limiter
}

// New creates a full Limiter allowing capacity requests per window.
func New(capacity int, window time.Duration) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: rate limiter capacity must be > 0, got %d", utils.ErrConfigValidation, capacity)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: rate limiter window must be > 0, got %v", utils.ErrConfigValidation, window)
	}
	refillRate := rate.Limit(float64(capacity) / window.Seconds())
	return &Limiter{
		capacity: capacity,
		window:   window,
		bucket:   rate.NewLimiter(refillRate, capacity),
	}, nil
}

// Capacity returns the configured burst capacity.
func (l *Limiter) Capacity() int { return l.capacity }

// Window returns the configured refill window.
func (l *Limiter) Window() time.Duration { return l.window }

// Tokens reports the tokens currently available. Informational only; by the
// time the caller acts on it another goroutine may have taken a token.
func (l *Limiter) Tokens() float64 { return l.bucket.Tokens() }

// TryAcquire attempts to take one token without blocking. On denial the
// returned RetryAfter is the time until a full token accrues at the current
// refill rate, i.e. (1 - tokens) * window / capacity.
func (l *Limiter) TryAcquire() Decision {
	now := time.Now()
	res := l.bucket.ReserveN(now, 1)
	if !res.OK() {
		// Unreachable with capacity >= 1, but don't hand out a token on it
		return Decision{Granted: false, RetryAfter: l.window}
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		// Not enough tokens right now. Give the reservation back so a
		// non-blocking denial never consumes future budget.
		res.CancelAt(now)
		return Decision{Granted: false, RetryAfter: delay}
	}
	return Decision{Granted: true}
}

// Acquire blocks until a token is granted or ctx is done. Contending callers
// are served approximately fairly: each denial sleeps out its RetryAfter and
// retries, so wakeup order decides who wins, not arrival order.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		decision := l.TryAcquire()
		if decision.Granted {
			return nil
		}
		wait := decision.RetryAfter
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
