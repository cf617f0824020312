package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/ratelimit"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// Servers occasionally send Retry-After values of hours; waiting that long
// inside a fetch would stall a worker, so honor the header only up to this.
const maxRetryAfterWait = 2 * time.Minute

// Request describes a single document fetch. Treat as immutable once issued.
type Request struct {
	URL     string
	Method  string            // http.MethodGet or http.MethodHead; empty means GET
	Headers map[string]string // Extra headers; a User-Agent here overrides the fetcher default
	Policy  *RetryPolicy      // nil uses the fetcher's default policy
}

// Fetcher is the retrieval surface shared by everything that issues requests
// through the resilient fetch loop: robots lookups, sitemap downloads, the
// article pipeline. Satisfied by *ResilientFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// Result is a completed fetch: the body is fully read and the connection
// released before it is returned. A fetch either yields a Result with a 2xx
// status or an error, never both.
type Result struct {
	StatusCode   int
	Body         []byte
	Headers      http.Header
	FinalURL     string // URL after redirects
	FetchedAt    time.Time
	AttemptCount int
	FromCache    bool // Set by the content cache layer, never by the fetcher
}

// RetryPolicy bounds the attempt loop. MaxAttempts counts the first attempt,
// so MaxAttempts=1 means no retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// PolicyFromConfig derives the default retry policy from validated app config.
func PolicyFromConfig(cfg *config.AppConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries + 1,
		BaseDelay:   cfg.InitialRetryDelay,
		MaxDelay:    cfg.MaxRetryDelay,
		Multiplier:  cfg.RetryMultiplier,
	}
}

// normalized returns a copy with unusable fields replaced by safe values,
// so a zero or hand-built policy cannot produce a spinning retry loop.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// backoffDelay returns the delay after the n-th failed attempt (1-based):
// BaseDelay * Multiplier^(n-1), capped at MaxDelay.
func (p RetryPolicy) backoffDelay(failedAttempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failedAttempt-1))
	delay := time.Duration(backoff)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// ResilientFetcher performs HTTP fetches with per-domain rate limiting and
// retry with exponential backoff. Every attempt, including retries, first
// takes a token from the domain's rate limiter, so a retried request queues
// behind the budget like any fresh one.
type ResilientFetcher struct {
	client    *http.Client
	limiters  *ratelimit.DomainLimiter
	policy    RetryPolicy
	rateWait  time.Duration // Max wait for a rate token on top of ctx (0 = ctx only)
	userAgent string
	log       *logrus.Entry
}

// NewResilientFetcher creates a fetcher drawing tokens from the shared
// domain limiter registry. Retry settings come from cfg; individual requests
// may carry their own RetryPolicy.
func NewResilientFetcher(client *http.Client, limiters *ratelimit.DomainLimiter, cfg *config.AppConfig, log *logrus.Entry) *ResilientFetcher {
	return &ResilientFetcher{
		client:    client,
		limiters:  limiters,
		policy:    PolicyFromConfig(cfg),
		rateWait:  cfg.RateAcquireTimeout,
		userAgent: cfg.DefaultUserAgent,
		log:       log,
	}
}

// Fetch performs the request with rate limiting, retries, and backoff.
// Retryable conditions are connection errors, timeouts, 429 and 5xx
// responses; other non-2xx statuses fail immediately with *HTTPError.
// When all attempts are spent the last error is wrapped in ErrMaxRetries.
func (f *ResilientFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return nil, fmt.Errorf("%w: unsupported method %q", utils.ErrRequestCreation, req.Method)
	}

	policy := f.policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	policy = policy.normalized()

	// One limiter per hostname; resolving it also validates the URL
	limiter, err := f.limiters.ForDomain(req.URL)
	if err != nil {
		return nil, err
	}

	reqLog := f.log.WithField("url", req.URL)

	var lastErr error
	var retryAfter time.Duration // From a 429/503 Retry-After header, consumed by the next backoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, f.wrapContextErr(err, lastErr, "before attempt")
		}

		// Backoff before every retry (not before the first attempt)
		if attempt > 1 {
			delay := policy.backoffDelay(attempt - 1)
			if retryAfter > delay {
				// Server told us when to come back; believe it over the formula
				delay = retryAfter
			} else if delay > 0 {
				// Jitter +/- 10% to desynchronize retrying workers
				jitterRange := int64(delay) / 5
				if jitterRange > 0 {
					delay += time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
				}
				if delay < 0 {
					delay = 0
				}
			}
			retryAfter = 0

			reqLog.WithFields(logrus.Fields{
				"attempt": attempt, "max_attempts": policy.MaxAttempts, "delay": delay,
			}).Warn("Retrying request...")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				reqLog.Warnf("Context done during retry backoff: %v", ctx.Err())
				return nil, f.wrapContextErr(ctx.Err(), lastErr, "during retry backoff")
			}
		}

		// Rate gate: every attempt queues behind the domain budget
		if err := f.acquireToken(ctx, limiter, reqLog); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
		if err != nil {
			return nil, utils.WrapErrorf(utils.ErrRequestCreation, "building request for '%s': %v", req.URL, err)
		}
		httpReq.Header.Set("User-Agent", f.userAgent)
		for key, value := range req.Headers {
			httpReq.Header.Set(key, value)
		}

		resp, doErr := f.client.Do(httpReq)
		if doErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				reqLog.Warnf("Context done during HTTP request: %v", doErr)
				return nil, f.wrapContextErr(ctxErr, lastErr, "during HTTP request")
			}
			lastErr = classifyNetworkError(doErr)
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", doErr)
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{
			"status_code": statusCode, "status": resp.Status, "attempt": attempt,
		})

		switch {
		case statusCode >= 200 && statusCode < 300:
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				// Full body or nothing; a truncated read is retried like a network error
				lastErr = utils.WrapErrorf(utils.ErrResponseBodyRead, "reading body of '%s': %v", req.URL, readErr)
				resLog.Warnf("Body read failed: %v", readErr)
				continue
			}
			resLog.Debug("Successfully fetched")
			return &Result{
				StatusCode:   statusCode,
				Body:         body,
				Headers:      resp.Header,
				FinalURL:     resp.Request.URL.String(),
				FetchedAt:    time.Now(),
				AttemptCount: attempt,
			}, nil

		case retryableStatus(statusCode):
			// 429 and 5xx are transient; 429/503 may carry a Retry-After hint
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
				retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
				if retryAfter > 0 {
					resLog.WithField("retry_after", retryAfter).Warn("Server requested backoff, retrying...")
				} else {
					resLog.Warn("Transient server response, retrying...")
				}
			} else {
				resLog.Warn("Server error, retrying...")
			}
			lastErr = NewHTTPError(statusCode, resp.Status)
			drainBody(resp)
			continue

		default:
			// Remaining 4xx plus anything else non-2xx is terminal
			resLog.Warn("Non-retryable status, giving up")
			drainBody(resp)
			return nil, NewHTTPError(statusCode, resp.Status)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", policy.MaxAttempts, lastErr)
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrMaxRetries, lastErr)
	}
	return nil, utils.ErrMaxRetries
}

// acquireToken blocks until the domain limiter grants a token, the fetcher's
// rate wait elapses, or ctx is done. Deadline expiry while waiting surfaces
// as ErrRateLimitTimeout; plain cancellation passes through untouched.
func (f *ResilientFetcher) acquireToken(ctx context.Context, limiter *ratelimit.Limiter, reqLog *logrus.Entry) error {
	decision := limiter.TryAcquire()
	if decision.Granted {
		return nil
	}
	reqLog.WithField("retry_after", decision.RetryAfter).Debug("Rate limited, waiting for token")

	waitCtx := ctx
	if f.rateWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.rateWait)
		defer cancel()
	}

	if err := limiter.Acquire(waitCtx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", utils.ErrRateLimitTimeout, err)
	}
	return nil
}

// wrapContextErr maps a context error observed at a suspension point to the
// app taxonomy: deadline expiry is a fetch timeout, cancellation stays a
// plain context error. The last attempt's error is kept for diagnostics.
func (f *ResilientFetcher) wrapContextErr(ctxErr, lastErr error, where string) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if lastErr != nil {
			return fmt.Errorf("%w: %w %s after error: %v", utils.ErrFetchTimeout, ctxErr, where, lastErr)
		}
		return fmt.Errorf("%w: %w %s", utils.ErrFetchTimeout, ctxErr, where)
	}
	if lastErr != nil {
		return fmt.Errorf("%w %s after error: %v", ctxErr, where, lastErr)
	}
	return ctxErr
}

// parseRetryAfter reads a Retry-After header as either delta-seconds or an
// HTTP-date, clamped to maxRetryAfterWait. Returns 0 when absent or invalid.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	var wait time.Duration
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		wait = time.Duration(seconds) * time.Second
	} else if when, err := http.ParseTime(header); err == nil {
		wait = time.Until(when)
		if wait <= 0 {
			return 0
		}
	} else {
		return 0
	}
	if wait > maxRetryAfterWait {
		wait = maxRetryAfterWait
	}
	return wait
}

// drainBody discards and closes a response body so the connection can be
// reused by the next attempt.
func drainBody(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
