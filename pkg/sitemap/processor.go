package sitemap

import (
	"context"
	"encoding/xml"
	"errors"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/parse"
	"github.com/sriram-pr/article-scraper/pkg/queue"
	"github.com/sriram-pr/article-scraper/pkg/storage"
)

// maxSitemapsPerSource caps how many sitemaps one source may expand to.
// A hostile or broken index chain stops here instead of running forever.
const maxSitemapsPerSource = 500

// enqueueTimeout bounds how long a send into the sitemap channel may block.
const enqueueTimeout = 5 * time.Second

// Fetcher is the fetch surface the processor needs. *fetch.ResilientFetcher
// satisfies it; tests substitute canned XML.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// SitemapProcessor expands sitemap and sitemap-index URLs into article work
// items. News sources publish fresh stories through Google News sitemaps, so
// entries carry publication dates; entries older than the configured
// freshness window are dropped without being fetched.
type SitemapProcessor struct {
	sitemapQueue               chan string
	pq                         *queue.WorkQueue     // Main priority queue for article URLs
	store                      storage.ArticleStore // To mark articles visited
	fetcher                    Fetcher
	globalSemaphore            *semaphore.Weighted
	compiledDisallowedPatterns []*regexp.Regexp
	sourceCfg                  config.SourceConfig
	appCfg                     config.AppConfig
	userAgent                  string
	maxAge                     time.Duration // Freshness window; 0 keeps everything
	log                        *logrus.Entry
	wg                         *sync.WaitGroup // Main harvest waitgroup

	sitemapsProcessedMu sync.Mutex
	sitemapsProcessed   map[string]bool
}

// NewSitemapProcessor creates a SitemapProcessor for one source.
func NewSitemapProcessor(
	sitemapQueue chan string,
	pq *queue.WorkQueue,
	store storage.ArticleStore,
	fetcher Fetcher,
	globalSemaphore *semaphore.Weighted,
	compiledDisallowedPatterns []*regexp.Regexp,
	sourceCfg config.SourceConfig,
	appCfg config.AppConfig,
	log *logrus.Logger,
	wg *sync.WaitGroup,
) *SitemapProcessor {
	return &SitemapProcessor{
		sitemapQueue:               sitemapQueue,
		pq:                         pq,
		store:                      store,
		fetcher:                    fetcher,
		globalSemaphore:            globalSemaphore,
		compiledDisallowedPatterns: compiledDisallowedPatterns,
		sourceCfg:                  sourceCfg,
		appCfg:                     appCfg,
		userAgent:                  config.GetEffectiveUserAgent(sourceCfg, appCfg),
		maxAge:                     config.GetEffectiveMaxArticleAge(sourceCfg, appCfg),
		log:                        log.WithField("component", "sitemap_processor"),
		wg:                         wg,
		sitemapsProcessed:          make(map[string]bool),
	}
}

// Start runs the sitemap processing loop in a goroutine.
func (sp *SitemapProcessor) Start(ctx context.Context) {
	sp.log.Info("Sitemap processing goroutine starting.")
	go sp.run(ctx)
}

// MarkSitemapProcessed records that a sitemap URL has been claimed for
// processing. Returns true if it was newly marked.
func (sp *SitemapProcessor) MarkSitemapProcessed(sitemapURL string) bool {
	sp.sitemapsProcessedMu.Lock()
	defer sp.sitemapsProcessedMu.Unlock()
	if sp.sitemapsProcessed[sitemapURL] {
		return false
	}
	sp.sitemapsProcessed[sitemapURL] = true
	return true
}

func (sp *SitemapProcessor) unmarkSitemapProcessed(sitemapURL string) {
	sp.sitemapsProcessedMu.Lock()
	delete(sp.sitemapsProcessed, sitemapURL)
	sp.sitemapsProcessedMu.Unlock()
}

func (sp *SitemapProcessor) processedCount() int {
	sp.sitemapsProcessedMu.Lock()
	defer sp.sitemapsProcessedMu.Unlock()
	return len(sp.sitemapsProcessed)
}

// Enqueue submits a sitemap URL for processing, deduplicating repeats and
// enforcing the per-source sitemap cap. Used for config seeds, robots.txt
// discoveries, and nested index entries alike. Returns true if the URL was
// accepted; the main waitgroup is incremented for accepted URLs and stays
// balanced on every rejection path.
func (sp *SitemapProcessor) Enqueue(ctx context.Context, sitemapURL string) bool {
	smLog := sp.log.WithField("sitemap_url", sitemapURL)

	if _, err := url.ParseRequestURI(sitemapURL); err != nil {
		smLog.Warnf("Invalid sitemap URL: %v", err)
		return false
	}
	if sp.processedCount() >= maxSitemapsPerSource {
		smLog.Warnf("Sitemap limit (%d) reached for source, skipping.", maxSitemapsPerSource)
		return false
	}
	if !sp.MarkSitemapProcessed(sitemapURL) {
		smLog.Debug("Sitemap already processed/queued.")
		return false
	}

	sp.wg.Add(1)
	select {
	case sp.sitemapQueue <- sitemapURL:
		smLog.Debug("Queued sitemap.")
		return true
	case <-ctx.Done():
		smLog.Warnf("Context cancelled while queueing sitemap: %v", ctx.Err())
	case <-time.After(enqueueTimeout):
		smLog.Error("Timeout queueing sitemap, dropping it.")
	}

	// Undo the claim so a later attempt can retry
	sp.unmarkSitemapProcessed(sitemapURL)
	sp.wg.Done()
	return false
}

// run receives sitemap URLs until the channel closes or ctx is cancelled,
// processing each in its own goroutine.
func (sp *SitemapProcessor) run(ctx context.Context) {
	var inFlight sync.WaitGroup

	defer func() {
		sp.log.Info("Waiting for active sitemap tasks to finish before exit...")
		inFlight.Wait()
		sp.log.Info("Sitemap processing goroutine exiting.")
	}()

	for {
		select {
		case <-ctx.Done():
			sp.log.Warnf("Context cancelled, stopping sitemap processing: %v", ctx.Err())
			return

		case sitemapURL, ok := <-sp.sitemapQueue:
			if !ok {
				sp.log.Info("Sitemap queue channel closed.")
				return
			}

			inFlight.Add(1)
			go func(smURL string) {
				defer func() {
					sp.wg.Done() // Balances the Enqueue that queued smURL
					inFlight.Done()
				}()
				defer func() {
					if r := recover(); r != nil {
						sp.log.WithFields(logrus.Fields{
							"sitemap_url": smURL,
							"panic_info":  r,
							"stack_trace": string(debug.Stack()),
						}).Error("PANIC recovered in sitemap task")
					}
				}()
				sp.processSitemap(ctx, smURL)
			}(sitemapURL)
		}
	}
}

// processSitemap fetches one sitemap and dispatches on its document type.
func (sp *SitemapProcessor) processSitemap(ctx context.Context, smURL string) {
	smLog := sp.log.WithField("sitemap_url", smURL)
	smLog.Info("Processing sitemap")

	ctxAcquire, cancelAcquire := context.WithTimeout(ctx, sp.appCfg.SemaphoreAcquireTimeout)
	err := sp.globalSemaphore.Acquire(ctxAcquire, 1)
	cancelAcquire()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			smLog.Errorf("Timeout acquiring global semaphore: %v", err)
		} else {
			smLog.Warnf("Could not acquire global semaphore: %v", err)
		}
		return
	}
	defer sp.globalSemaphore.Release(1)

	// Rate limiting and retries live inside the fetcher
	result, fetchErr := sp.fetcher.Fetch(ctx, fetch.Request{
		URL:     smURL,
		Headers: map[string]string{"User-Agent": sp.userAgent},
	})
	if fetchErr != nil {
		smLog.Errorf("Sitemap fetch failed: %v", fetchErr)
		return
	}

	// A sitemap index and a URL set are distinct document types; try the
	// index first since news sites usually publish an index at the root
	var index parse.XMLSitemapIndex
	errIndex := xml.Unmarshal(result.Body, &index)
	if errIndex == nil && len(index.Sitemaps) > 0 {
		sp.expandSitemapIndex(ctx, index, smLog)
		return
	}

	var urlSet parse.XMLURLSet
	if errURLSet := xml.Unmarshal(result.Body, &urlSet); errURLSet != nil {
		if errIndex != nil {
			smLog.Errorf("Failed to parse XML (index err=%v; urlset err=%v)", errIndex, errURLSet)
		} else {
			smLog.Warnf("Content was neither a sitemap index nor a URL set (urlset err=%v)", errURLSet)
		}
		return
	}
	sp.queueURLSet(urlSet, smLog)
}

// expandSitemapIndex queues every nested sitemap that has not been seen yet.
func (sp *SitemapProcessor) expandSitemapIndex(ctx context.Context, index parse.XMLSitemapIndex, smLog *logrus.Entry) {
	smLog.Infof("Parsed as sitemap index, found %d references.", len(index.Sitemaps))
	queued := 0
	for _, entry := range index.Sitemaps {
		if sp.Enqueue(ctx, entry.Loc) {
			queued++
		}
	}
	smLog.Infof("Queued %d nested sitemaps.", queued)
}

// queueURLSet walks a urlset, applies scope and freshness checks, and queues
// unseen article URLs at depth 0.
func (sp *SitemapProcessor) queueURLSet(urlSet parse.XMLURLSet, smLog *logrus.Entry) {
	smLog.Infof("Parsed as URL set, found %d entries.", len(urlSet.URLs))

	queued := 0
	stale := 0
	dbErrors := 0
	for _, entry := range urlSet.URLs {
		if !sp.inScope(entry.Loc, smLog) {
			continue
		}
		if sp.isStale(entry) {
			stale++
			smLog.Debugf("Skipping stale entry: %s", entry.Loc)
			continue
		}
		if entry.News != nil {
			smLog.Debugf("News entry: %s (%q, %s)", entry.Loc, entry.News.Title, entry.News.Publication.Name)
		}

		normalized, _, errNorm := parse.ParseAndNormalize(entry.Loc)
		if errNorm != nil {
			smLog.Warnf("Cannot normalize sitemap URL '%s': %v", entry.Loc, errNorm)
			continue
		}

		added, visitErr := sp.store.MarkArticleVisited(normalized)
		if visitErr != nil {
			smLog.Errorf("DB error marking sitemap URL visited: %v", visitErr)
			dbErrors++
			continue
		}
		if !added {
			continue
		}

		sp.wg.Add(1)
		// Depth 0: sitemap entries are direct article seeds
		sp.pq.Add(&models.WorkItem{URL: entry.Loc, Depth: 0})
		queued++
	}

	switch {
	case dbErrors > 0:
		smLog.Warnf("Finished URL set. Queued %d new URLs, skipped %d stale, hit %d DB errors.", queued, stale, dbErrors)
	case stale > 0:
		smLog.Infof("Finished URL set. Queued %d new URLs, skipped %d stale.", queued, stale)
	default:
		smLog.Infof("Finished URL set. Queued %d new URLs.", queued)
	}
}

// inScope applies the same scheme/domain/prefix/pattern checks the link
// extractor uses to URLs found in sitemaps.
func (sp *SitemapProcessor) inScope(rawURL string, smLog *logrus.Entry) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		smLog.Warnf("Sitemap URL parse error for '%s': %v", rawURL, err)
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Hostname() != sp.sourceCfg.AllowedDomain {
		return false
	}
	targetPath := parsed.Path
	if targetPath == "" {
		targetPath = "/"
	}
	if !strings.HasPrefix(targetPath, sp.sourceCfg.AllowedPathPrefix) {
		return false
	}
	for _, pattern := range sp.compiledDisallowedPatterns {
		if pattern.MatchString(parsed.Path) {
			return false
		}
	}
	return true
}

// isStale reports whether the entry's publication date falls outside the
// freshness window. The news publication date wins over lastmod; entries
// without a parseable date are never stale.
func (sp *SitemapProcessor) isStale(entry parse.XMLURL) bool {
	if sp.maxAge <= 0 {
		return false
	}
	published, ok := entry.News.PublishedTime()
	if !ok {
		published, ok = parse.ParseSitemapTime(entry.LastMod)
	}
	if !ok {
		return false
	}
	return time.Since(published) > sp.maxAge
}
