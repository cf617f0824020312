package ratelimit

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// DomainLimiter hands out one Limiter per hostname, creating each lazily
// with the default budget. A single registry should be shared across all
// components so every request to a domain draws from the same bucket.
type DomainLimiter struct {
	limiters map[string]*Limiter
	mu       sync.Mutex
	capacity int
	window   time.Duration
	log      *logrus.Entry
}

// NewDomainLimiter creates a registry whose per-domain limiters allow
// capacity requests per window.
func NewDomainLimiter(capacity int, window time.Duration, log *logrus.Entry) (*DomainLimiter, error) {
	// Fail construction now rather than on first lookup
	if _, err := New(capacity, window); err != nil {
		return nil, err
	}
	return &DomainLimiter{
		limiters: make(map[string]*Limiter),
		capacity: capacity,
		window:   window,
		log:      log,
	}, nil
}

// ForDomain returns the limiter governing rawURL's hostname, creating it on
// first use. Lookups are keyed by the lowercased hostname, so all URLs on a
// domain share one bucket regardless of scheme, port, path, or case. The
// first limiter stored for a hostname is the one every caller gets back.
func (d *DomainLimiter) ForDomain(rawURL string) (*Limiter, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "invalid url '%s': %v", rawURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: url '%s' has no hostname", utils.ErrParsing, rawURL)
	}
	return d.forHost(host), nil
}

// forHost gets or creates the limiter for an already-normalized hostname.
func (d *DomainLimiter) forHost(host string) *Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	limiter, exists := d.limiters[host]
	if !exists {
		// Budget was validated at registry construction
		limiter, _ = New(d.capacity, d.window)
		d.limiters[host] = limiter
		d.log.WithFields(logrus.Fields{
			"host": host, "capacity": d.capacity, "window": d.window,
		}).Debug("Created new domain rate limiter")
	}
	return limiter
}

// SetBudget installs a limiter with a custom budget for one hostname,
// replacing any existing limiter. Intended for applying per-source overrides
// at startup, before workers start drawing tokens.
func (d *DomainLimiter) SetBudget(host string, capacity int, window time.Duration) error {
	limiter, err := New(capacity, window)
	if err != nil {
		return err
	}
	key := strings.ToLower(host)

	d.mu.Lock()
	d.limiters[key] = limiter
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"host": key, "capacity": capacity, "window": window,
	}).Debug("Installed domain rate limiter override")
	return nil
}

// EnsureBudget installs b for one hostname unless that host's limiter already
// carries exactly that budget. Replacing a limiter starts a fresh full bucket,
// so callers that pass the same override on every request must not reinstall
// it each time; this is the method for them.
func (d *DomainLimiter) EnsureBudget(host string, b Budget) error {
	limiter, err := New(b.Capacity, b.Window)
	if err != nil {
		return err
	}
	key := strings.ToLower(host)

	d.mu.Lock()
	existing, exists := d.limiters[key]
	if exists && existing.Capacity() == b.Capacity && existing.Window() == b.Window {
		d.mu.Unlock()
		return nil
	}
	d.limiters[key] = limiter
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"host": key, "capacity": b.Capacity, "window": b.Window,
	}).Debug("Installed domain rate limiter override")
	return nil
}

// Len returns the current number of tracked domains.
func (d *DomainLimiter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.limiters)
}
