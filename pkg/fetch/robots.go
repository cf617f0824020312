package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/semaphore"

	"github.com/sriram-pr/article-scraper/pkg/config"
)

// SitemapDiscoverer defines the callback interface for handling sitemap URLs
// found in robots.txt directives
type SitemapDiscoverer interface {
	FoundSitemap(sitemapURL string)
}

// RobotsHandler manages fetching, parsing, caching, and checking robots.txt data
type RobotsHandler struct {
	fetcher         Fetcher
	robotsCache     map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	robotsCacheMu   sync.Mutex
	globalSemaphore *semaphore.Weighted
	sitemapNotifier SitemapDiscoverer // Component to notify about found sitemaps
	cfg             *config.AppConfig
	log             *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(
	fetcher Fetcher,
	globalSemaphore *semaphore.Weighted,
	sitemapNotifier SitemapDiscoverer,
	cfg *config.AppConfig,
	log *logrus.Entry,
) *RobotsHandler {
	return &RobotsHandler{
		fetcher:         fetcher,
		robotsCache:     make(map[string]*robotstxt.RobotsData),
		globalSemaphore: globalSemaphore,
		sitemapNotifier: sitemapNotifier,
		cfg:             cfg,
		log:             log,
	}
}

// GetRobotsData retrieves robots.txt data for the targetURL's host, using cache or fetching
// Returns parsed data or nil on any error/4xx/missing file
// signalChan is only for coordinating the initial harvest startup fetch
func (rh *RobotsHandler) GetRobotsData(targetURL *url.URL, signalChan chan<- bool, ctx context.Context) *robotstxt.RobotsData {
	if ctx == nil {
		ctx = context.Background()
	}
	// Signal completion on exit if channel provided (non-blocking)
	if signalChan != nil {
		defer func() {
			select {
			case signalChan <- true:
			default:
				rh.log.Warn("Failed robots signalChan send")
			}
		}()
	}

	host := targetURL.Hostname()
	hostLog := rh.log.WithField("host", host)

	// 1. Check Cache
	rh.robotsCacheMu.Lock()
	robotsData, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()
	if found {
		return robotsData // Return cached data (could be nil)
	}

	// 2. Prepare Fetch URL
	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if targetURL.Scheme != "http" && targetURL.Scheme != "https" {
		hostLog.Warnf("Invalid scheme '%s', defaulting to https for robots.txt", targetURL.Scheme)
		robotsURL.Scheme = "https"
	}
	robotsURLStr := robotsURL.String()
	robotsLog := hostLog.WithField("robots_url", robotsURLStr)
	robotsLog.Info("Fetching robots.txt...") // Log only on cache miss

	// 3. Acquire Global Semaphore
	semTimeout := rh.cfg.SemaphoreAcquireTimeout
	robotsLog.Debug("Acquiring global semaphore...")
	ctxAcquire, cancelAcquire := context.WithTimeout(ctx, semTimeout)
	err := rh.globalSemaphore.Acquire(ctxAcquire, 1)
	cancelAcquire()
	if err != nil {
		robotsLog.Errorf("Error acquiring global semaphore: %v", err)
		rh.cacheResult(host, nil)
		return nil
	}
	robotsLog.Debug("Acquired global semaphore.")
	defer func() {
		rh.globalSemaphore.Release(1)
		robotsLog.Debug("Released global semaphore.")
	}()

	// 4. Fetch (rate limiting and retries handled by the fetcher)
	result, fetchErr := rh.fetcher.Fetch(ctx, Request{URL: robotsURLStr})
	if fetchErr != nil {
		// Missing or unreachable robots.txt: remember the miss and allow all
		robotsLog.Warnf("Fetching robots.txt failed: %v", fetchErr)
		rh.cacheResult(host, nil)
		return nil
	}

	// 5. Parse Body
	data, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		robotsLog.Errorf("Error parsing content: %v", err)
		rh.cacheResult(host, nil)
		return nil
	}

	// 6. Cache Success & Notify Sitemaps
	robotsLog.Info("Successfully fetched and parsed robots.txt")
	rh.cacheResult(host, data)

	if rh.sitemapNotifier != nil && len(data.Sitemaps) > 0 {
		robotsLog.Infof("Found %d sitemap directive(s)", len(data.Sitemaps))
		for _, sitemapURL := range data.Sitemaps {
			rh.sitemapNotifier.FoundSitemap(sitemapURL) // Notify discoverer
		}
	}

	return data
}

// cacheResult stores the outcome for a host, nil meaning "tried and failed".
func (rh *RobotsHandler) cacheResult(host string, data *robotstxt.RobotsData) {
	rh.robotsCacheMu.Lock()
	rh.robotsCache[host] = data
	rh.robotsCacheMu.Unlock()
}

// TestAgent checks if the user agent is allowed access based on cached/fetched rules
// Returns true if allowed (or robots fetch/parse fails), false otherwise
func (rh *RobotsHandler) TestAgent(targetURL *url.URL, userAgent string, ctx context.Context) bool {
	// Get data, fetching if needed. Handles caching internally
	robotsData := rh.GetRobotsData(targetURL, nil, ctx)

	// Assume allowed if robots data could not be obtained (4xx, 5xx, network error, parse error)
	if robotsData == nil {
		return true
	}

	// Perform check using the parsed data
	return robotsData.TestAgent(targetURL.RequestURI(), userAgent)
}
