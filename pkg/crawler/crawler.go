// Package crawler orchestrates a per-source harvest: it seeds start URLs and
// sitemaps, walks listing pages for article links, and routes every article
// URL through the extraction pipeline under the configured concurrency and
// politeness limits.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/parse"
	"github.com/sriram-pr/article-scraper/pkg/pipeline"
	"github.com/sriram-pr/article-scraper/pkg/process"
	"github.com/sriram-pr/article-scraper/pkg/queue"
	"github.com/sriram-pr/article-scraper/pkg/sitemap"
	"github.com/sriram-pr/article-scraper/pkg/storage"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// hostEvictionInterval is how often idle per-host semaphore slots are swept.
const hostEvictionInterval = 5 * time.Minute

// Crawler orchestrates the harvest of a single configured news source.
type Crawler struct {
	log                        *logrus.Entry // Logger contextualized with source_key
	appCfg                     config.AppConfig
	sourceCfg                  config.SourceConfig
	sourceKey                  string // Source identifier from config
	sourceOutputDir            string // Base output directory for this source's files
	userAgent                  string
	compiledDisallowedPatterns []*regexp.Regexp

	// Core components
	store            storage.HarvestStore
	pq               *queue.WorkQueue
	fetcher          fetch.Fetcher
	pipeline         *pipeline.Pipeline
	pipeOverrides    *pipeline.Overrides // Per-source pipeline settings, nil when global defaults apply
	robotsHandler    *fetch.RobotsHandler
	sitemapProcessor *sitemap.SitemapProcessor
	linkProcessor    *process.LinkProcessor
	markdownWriter   *process.MarkdownWriter

	// Concurrency control
	globalSemaphore *semaphore.Weighted
	hostSemPool     *fetch.HostSemaphorePool

	// Tracking and coordination
	wg               sync.WaitGroup     // Main WaitGroup for all active tasks (articles, sitemaps)
	processedCounter atomic.Int64       // Counter for tasks processed by workers
	crawlCtx         context.Context    // Master context for the entire harvest of this source
	cancelCrawl      context.CancelFunc // Function to cancel the crawlCtx
	refresh          bool               // Re-fetch previously harvested URLs and rewrite on change

	// Sitemap handling
	sitemapQueue    chan string     // Channel for sitemap URLs to be processed
	foundSitemaps   map[string]bool // Tracks sitemaps discovered via robots.txt
	foundSitemapsMu sync.Mutex      // Protects foundSitemaps

	// Output file management (TSV, JSONL, chunks, YAML metadata)
	output *OutputManager
}

// Options contains optional parameters for NewCrawler.
type Options struct {
	// SharedSemaphore caps in-flight requests across multiple crawlers.
	// If nil, the crawler creates its own semaphore from appCfg.MaxRequests.
	SharedSemaphore *semaphore.Weighted

	// Refresh re-fetches URLs already harvested successfully and rewrites
	// their outputs only when the extracted content changed. The watch
	// scheduler sets this; one-shot harvests skip prior successes instead.
	Refresh bool
}

// NewCrawler creates and initializes a new Crawler instance and its components.
func NewCrawler(
	appCfg config.AppConfig,
	sourceCfg config.SourceConfig,
	sourceKey string, // The key for this source from the config map
	baseLogger *logrus.Entry, // Base logger from main
	store storage.HarvestStore,
	fetcher fetch.Fetcher,
	pl *pipeline.Pipeline,
	crawlCtx context.Context,
	cancelCrawl context.CancelFunc,
) (*Crawler, error) {
	return NewCrawlerWithOptions(appCfg, sourceCfg, sourceKey, baseLogger, store, fetcher, pl, crawlCtx, cancelCrawl, nil)
}

// NewCrawlerWithOptions creates a new Crawler with optional configuration.
// The pipeline is shared infrastructure: the crawler never closes it.
func NewCrawlerWithOptions(
	appCfg config.AppConfig,
	sourceCfg config.SourceConfig,
	sourceKey string,
	baseLogger *logrus.Entry,
	store storage.HarvestStore,
	fetcher fetch.Fetcher,
	pl *pipeline.Pipeline,
	crawlCtx context.Context,
	cancelCrawl context.CancelFunc,
	opts *Options,
) (*Crawler, error) {

	logger := baseLogger.WithField("source_key", sourceKey)

	compiledDisallowedPatterns, err := utils.CompileRegexPatterns(sourceCfg.DisallowedPathPatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling disallowed patterns for source '%s': %w", sourceKey, err)
	}
	if len(compiledDisallowedPatterns) > 0 {
		logger.Infof("Compiled %d disallowed path patterns.", len(compiledDisallowedPatterns))
	}

	sourceOutputDir := filepath.Join(appCfg.OutputBaseDir, utils.SanitizeFilename(sourceCfg.AllowedDomain))

	// Use shared semaphore if provided, otherwise create a new one
	var globalSem *semaphore.Weighted
	refresh := false
	if opts != nil {
		if opts.SharedSemaphore != nil {
			globalSem = opts.SharedSemaphore
			logger.Debug("Using shared global semaphore")
		}
		refresh = opts.Refresh
	}
	if globalSem == nil {
		globalSem = semaphore.NewWeighted(int64(appCfg.MaxRequests))
	}

	// Per-source pipeline settings: only a cache TTL override lives here.
	// The per-source rate budget is installed on the shared limiter registry
	// by whoever owns it (main or the orchestrator), before workers start.
	var pipeOverrides *pipeline.Overrides
	if sourceCfg.CacheTTL != nil {
		pipeOverrides = &pipeline.Overrides{CacheTTL: *sourceCfg.CacheTTL}
	}

	c := &Crawler{
		log:                        logger,
		appCfg:                     appCfg,
		sourceCfg:                  sourceCfg,
		sourceKey:                  sourceKey,
		sourceOutputDir:            sourceOutputDir,
		userAgent:                  config.GetEffectiveUserAgent(sourceCfg, appCfg),
		compiledDisallowedPatterns: compiledDisallowedPatterns,
		store:                      store,
		pq:                         queue.NewWorkQueue(logger),
		fetcher:                    fetcher,
		pipeline:                   pl,
		pipeOverrides:              pipeOverrides,
		globalSemaphore:            globalSem,
		hostSemPool:                fetch.NewHostSemaphorePool(appCfg.MaxRequestsPerHost, logger),
		crawlCtx:                   crawlCtx,
		cancelCrawl:                cancelCrawl,
		refresh:                    refresh,
		sitemapQueue:               make(chan string, 100),
		foundSitemaps:              make(map[string]bool),
	}

	// Output manager (files opened later in Run, after directory cleanup)
	c.output = NewOutputManager(logger, appCfg, sourceCfg, sourceKey, sourceOutputDir)

	// Tokenizer for token counting (if enabled)
	if c.appCfg.EnableTokenCounting {
		encoding := c.appCfg.TokenizerEncoding
		if encoding == "" {
			encoding = "cl100k_base"
		}
		if err := process.InitTokenizer(encoding); err != nil {
			c.log.Warnf("Failed to initialize tokenizer with encoding '%s': %v. Token counting will use estimates.", encoding, err)
		} else {
			c.log.Infof("Token counting enabled with encoding: %s", encoding)
		}
	}

	// Components that depend on the crawler or on each other
	c.robotsHandler = fetch.NewRobotsHandler(fetcher, c.globalSemaphore, c, &c.appCfg, logger)
	c.sitemapProcessor = sitemap.NewSitemapProcessor(c.sitemapQueue, c.pq, c.store, c.fetcher, c.globalSemaphore, c.compiledDisallowedPatterns, c.sourceCfg, c.appCfg, logger.Logger, &c.wg)
	c.linkProcessor = process.NewLinkProcessor(c.store, c.pq, c.compiledDisallowedPatterns, logger.Logger)
	c.markdownWriter = process.NewMarkdownWriter(logger.Logger)

	return c, nil
}

// FoundSitemap implements fetch.SitemapDiscoverer for the RobotsHandler
// callback. Called when a Sitemap directive shows up in robots.txt.
func (c *Crawler) FoundSitemap(sitemapURL string) {
	c.foundSitemapsMu.Lock()
	isNew := false
	if _, exists := c.foundSitemaps[sitemapURL]; !exists {
		c.foundSitemaps[sitemapURL] = true
		isNew = true
	}
	c.foundSitemapsMu.Unlock()

	if isNew {
		c.log.Debugf("Crawler notified of newly found sitemap: %s", sitemapURL)
	}
}

// Progress contains progress information for a running harvest.
type Progress struct {
	SourceKey         string
	ArticlesProcessed int64
	ArticlesQueued    int
	IsRunning         bool
}

// GetProgress returns the current progress of the crawler.
func (c *Crawler) GetProgress() Progress {
	return Progress{
		SourceKey:         c.sourceKey,
		ArticlesProcessed: c.processedCounter.Load(),
		ArticlesQueued:    c.pq.Len(),
		IsRunning:         c.crawlCtx.Err() == nil,
	}
}

// Run starts the harvest for the configured source and blocks until
// completion or cancellation.
func (c *Crawler) Run(resume bool) error {
	c.output.harvestStartTime = time.Now()
	runLogFields := logrus.Fields{"domain": c.sourceCfg.AllowedDomain, "resume": resume, "refresh": c.refresh}
	c.log.WithFields(runLogFields).Infof("Harvest starting with %d worker(s)...", c.appCfg.NumWorkers)
	harvestStartForDuration := time.Now()

	defer func() {
		if err := c.output.Close(); err != nil {
			c.log.WithFields(runLogFields).Errorf("Failed to write final metadata YAML: %v", err)
		}
	}()

	// --- Start URL Validation ---
	var validStartURLs []string
	seenStartURLs := make(map[string]bool, len(c.sourceCfg.StartURLs))
	var firstValidParsedURL *url.URL // Used for the initial robots.txt fetch
	c.log.WithFields(runLogFields).Infof("Validating %d provided start URLs...", len(c.sourceCfg.StartURLs))
	for i, startURLStr := range c.sourceCfg.StartURLs {
		startValidateLog := c.log.WithFields(logrus.Fields{"index": i, "url": startURLStr})
		if seenStartURLs[startURLStr] {
			startValidateLog.Warn("Duplicate start URL. Skipping.")
			continue
		}
		seenStartURLs[startURLStr] = true
		parsed, err := url.ParseRequestURI(startURLStr)
		if err != nil {
			startValidateLog.Warnf("Invalid format: %v. Skipping.", err)
			continue
		}
		if parsed.Hostname() != c.sourceCfg.AllowedDomain {
			startValidateLog.Warnf("Domain mismatch (%s != %s). Skipping.", parsed.Hostname(), c.sourceCfg.AllowedDomain)
			continue
		}
		targetPath := parsed.Path
		if targetPath == "" {
			targetPath = "/"
		}
		if !strings.HasPrefix(targetPath, c.sourceCfg.AllowedPathPrefix) {
			startValidateLog.Warnf("Path prefix mismatch ('%s' not under '%s'). Skipping.", targetPath, c.sourceCfg.AllowedPathPrefix)
			continue
		}
		startValidateLog.Debug("Start URL format and scope validated.")
		validStartURLs = append(validStartURLs, startURLStr)
		if firstValidParsedURL == nil {
			firstValidParsedURL = parsed
		}
	}
	if len(validStartURLs) == 0 && len(c.sourceCfg.SitemapURLs) == 0 {
		return fmt.Errorf("no valid start_urls or sitemap_urls for source '%s'", c.sourceKey)
	}
	if firstValidParsedURL == nil {
		// Sitemap-only source: derive the robots.txt host from the domain
		firstValidParsedURL = &url.URL{Scheme: "https", Host: c.sourceCfg.AllowedDomain, Path: "/"}
	}
	c.log.WithFields(runLogFields).Infof("Using %d valid start URLs: %v", len(validStartURLs), validStartURLs)

	// --- Clean/Prepare Output Directory ---
	c.log.WithFields(runLogFields).Infof("Source output target directory: %s", c.sourceOutputDir)
	if !resume && !c.refresh {
		if err := c.cleanSourceOutputDir(); err != nil {
			c.log.WithFields(runLogFields).Errorf("Failed to clean source output directory, attempting to continue: %v", err)
		}
	}
	if err := os.MkdirAll(c.sourceOutputDir, 0755); err != nil {
		return fmt.Errorf("error creating source output dir '%s' for source '%s': %w", c.sourceOutputDir, c.sourceKey, err)
	}

	// Refresh reruns rewrite in place, so outputs stay in append mode like a resume.
	c.output.OpenFiles(resume || c.refresh)

	// --- Requeue Incomplete Tasks from DB (if resuming) ---
	initialTasksFromDB := 0
	if resume {
		c.log.WithFields(runLogFields).Info("Resume mode: Scanning database for incomplete tasks to requeue...")
		requeueChan := make(chan models.WorkItem, 100)
		var requeueWg sync.WaitGroup
		requeueWg.Add(1)
		go func() {
			defer requeueWg.Done()
			for item := range requeueChan {
				c.wg.Add(1)
				c.pq.Add(&item)
				initialTasksFromDB++
			}
		}()

		_, _, scanErr := c.store.RequeueIncomplete(c.crawlCtx, requeueChan)
		close(requeueChan)
		requeueWg.Wait()

		if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
			c.log.WithFields(runLogFields).Errorf("Error encountered during DB requeue scan: %v", scanErr)
		}
		if c.crawlCtx.Err() != nil {
			c.log.WithFields(runLogFields).Warnf("Harvest context cancelled during resume scan: %v", c.crawlCtx.Err())
			return c.crawlCtx.Err()
		}
		c.log.WithFields(runLogFields).Infof("DB requeue scan complete. Requeued %d tasks.", initialTasksFromDB)
	}

	// --- Start Background Processes (Workers, Sitemap Processor, Eviction) ---
	c.log.WithFields(runLogFields).Infof("Starting %d workers...", c.appCfg.NumWorkers)
	for i := 1; i <= c.appCfg.NumWorkers; i++ {
		workerLog := c.log.WithField("worker_id", i)
		go c.worker(workerLog)
	}
	c.sitemapProcessor.Start(c.crawlCtx)
	go c.hostSemPool.RunEviction(c.crawlCtx, hostEvictionInterval)

	// --- Waiter Goroutine (Coordinates Startup Dependencies & Shutdown) ---
	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)

		// Progress reporting (nested)
		progTicker := time.NewTicker(30 * time.Second)
		progDone := make(chan bool)
		defer func() {
			progTicker.Stop()
			close(progDone)
		}()
		go func() {
			for {
				select {
				case <-progDone:
					return
				case <-c.crawlCtx.Done():
					return
				case <-progTicker.C:
					vCount, _ := c.store.GetVisitedCount()
					c.log.WithFields(logrus.Fields{
						"source_key":        c.sourceKey,
						"visited_db":        vCount,
						"article_queue_len": c.pq.Len(),
						"sitemap_queue_len": len(c.sitemapQueue),
						"processed_tasks":   c.processedCounter.Load(),
						"tracked_hosts":     c.hostSemPool.TrackedHosts(),
					}).Info("Harvest progress")
				}
			}
		}()

		// Initial robots.txt fetch must complete before sitemap seeding so
		// Sitemap directives from robots.txt are already collected.
		c.log.WithFields(runLogFields).Info("Triggering initial robots.txt fetch...")
		initialRobotsDone := make(chan bool, 1)
		go c.robotsHandler.GetRobotsData(firstValidParsedURL, initialRobotsDone, c.crawlCtx)
		select {
		case <-initialRobotsDone:
			c.log.WithFields(runLogFields).Debug("Waiter: Initial robots.txt fetch signaled complete.")
		case <-c.crawlCtx.Done():
			c.log.WithFields(runLogFields).Warnf("Waiter: Context cancelled while waiting for initial robots.txt: %v", c.crawlCtx.Err())
			return
		}

		// Seed configured sitemaps, then any discovered in robots.txt.
		// Enqueue handles dedupe, the per-source cap, and the WaitGroup.
		seeded := 0
		for _, smURL := range c.sourceCfg.SitemapURLs {
			if c.sitemapProcessor.Enqueue(c.crawlCtx, smURL) {
				seeded++
			}
		}
		if c.sourceCfg.UseRobotsSitemaps {
			c.foundSitemapsMu.Lock()
			discovered := make([]string, 0, len(c.foundSitemaps))
			for smURL := range c.foundSitemaps {
				discovered = append(discovered, smURL)
			}
			c.foundSitemapsMu.Unlock()
			for _, smURL := range discovered {
				if c.sitemapProcessor.Enqueue(c.crawlCtx, smURL) {
					seeded++
				}
			}
		}
		if seeded > 0 {
			c.log.WithFields(runLogFields).Infof("Waiter: Queued %d sitemap(s) for processing.", seeded)
		}

		// Wait for all tasks (article workers + sitemap tasks via c.wg)
		c.log.WithFields(runLogFields).Info("Waiter: Waiting for all tasks (articles, sitemaps)...")
		waitTasksDone := make(chan struct{})
		go func() { c.wg.Wait(); close(waitTasksDone) }()
		select {
		case <-waitTasksDone:
			c.log.WithFields(runLogFields).Info("Waiter: All tasks done.")
		case <-c.crawlCtx.Done():
			c.log.WithFields(runLogFields).Warnf("Waiter: Context cancelled/timed out (%v) while waiting for tasks. Initiating shutdown.", c.crawlCtx.Err())
		}

		// Closing the sitemap queue is safe here: every Enqueue call runs
		// either above or inside a WaitGroup-tracked task, and both are done.
		c.pq.Close()
		close(c.sitemapQueue)
	}()

	// --- Seed Queue with Validated Start URLs ---
	initialURLsAddedFromSeed := 0
	for _, startURLStr := range validStartURLs {
		seedLog := c.log.WithField("url", startURLStr)
		normalized, _, normErr := parse.ParseAndNormalize(startURLStr)
		if normErr != nil {
			seedLog.Warnf("Could not normalize start URL, skipping: %v", normErr)
			continue
		}
		// Claim the URL up front so an in-page link back to it is not queued
		// a second time. Already-claimed seeds are still queued; the worker's
		// status check decides whether anything is left to do.
		if _, markErr := c.store.MarkArticleVisited(normalized); markErr != nil {
			seedLog.Warnf("Could not mark start URL visited: %v", markErr)
		}
		seedLog.Info("Adding start URL to queue (depth 0).")
		c.wg.Add(1)
		c.pq.Add(&models.WorkItem{URL: startURLStr, Depth: 0})
		initialURLsAddedFromSeed++
	}
	if initialURLsAddedFromSeed == 0 && initialTasksFromDB == 0 &&
		len(c.sourceCfg.SitemapURLs) == 0 && !c.sourceCfg.UseRobotsSitemaps {
		c.log.WithFields(runLogFields).Error("CRITICAL: No tasks seeded (no valid start URLs, no resume tasks, no sitemaps). Harvest will likely terminate.")
	}

	// --- Wait for Waiter Goroutine to Finish ---
	select {
	case <-waiterDone:
		c.log.WithFields(runLogFields).Debug("Main: Waiter finished signal received.")
	case <-c.crawlCtx.Done():
		c.log.WithFields(runLogFields).Warnf("Main: Harvest context cancelled while waiting for waiter: %v", c.crawlCtx.Err())
		<-waiterDone // Still wait for the waiter's cleanup (closing queues)
	}

	// --- Final Summary ---
	duration := time.Since(harvestStartForDuration)
	finalVisitedCount, countErr := c.store.GetVisitedCount()
	if countErr != nil {
		c.log.WithFields(runLogFields).Warnf("Could not get final visited count from DB: %v", countErr)
		finalVisitedCount = -1
	}
	summaryLog := c.log.WithFields(logrus.Fields{"domain": c.sourceCfg.AllowedDomain})
	summaryLog.Info("========================================================================")
	summaryLog.Info("HARVEST FINISHED")
	summaryLog.Infof("Duration:    %v", duration)
	summaryLog.Infof("Final stats: Visited (DB est): %d, Processed tasks: %d, Articles saved: %d",
		finalVisitedCount, c.processedCounter.Load(), c.output.ArticlesSaved())
	for host, det := range c.pipeline.PlatformSnapshot() {
		if det.Generic {
			summaryLog.Infof("Publishing platform for %s: none detected (generic selectors)", host)
			continue
		}
		summaryLog.Infof("Publishing platform for %s: %s (selector %q)", host, det.CMS, det.Selector)
	}
	summaryLog.Info("========================================================================")

	return c.crawlCtx.Err()
}

// worker runs the loop for a single worker goroutine, processing tasks from
// the priority queue.
func (c *Crawler) worker(workerLog *logrus.Entry) {
	workerLog.Info("Worker starting")
	defer workerLog.Info("Worker finished")

	for {
		// Check context before a potentially blocking Pop, to allow quick exit
		select {
		case <-c.crawlCtx.Done():
			workerLog.Warnf("Worker shutting down due to context cancellation: %v", c.crawlCtx.Err())
			return
		default:
		}

		workItemPtr, ok := c.pq.Pop()
		if !ok { // Queue closed and empty, no more work
			if c.crawlCtx.Err() != nil {
				workerLog.Warnf("Worker shutting down (queue closed & context cancelled): %v", c.crawlCtx.Err())
			} else {
				workerLog.Info("Worker shutting down (queue closed & empty, all tasks processed).")
			}
			return
		}

		c.processArticleTask(*workItemPtr, workerLog)
	}
}

// cleanSourceOutputDir removes the source-specific output directory. Called
// for fresh (non-resume, non-refresh) harvests.
func (c *Crawler) cleanSourceOutputDir() error {
	c.log.Warnf("Attempting to remove existing source output directory: %s", c.sourceOutputDir)

	// Safety check: resolve absolute paths to prevent deletion outside base_dir
	absBase, errBase := filepath.Abs(c.appCfg.OutputBaseDir)
	if errBase != nil {
		return fmt.Errorf("safety check failed (resolving base path '%s'): %w", c.appCfg.OutputBaseDir, errBase)
	}
	absSource, errSource := filepath.Abs(c.sourceOutputDir)
	if errSource != nil {
		return fmt.Errorf("safety check failed (resolving source path '%s'): %w", c.sourceOutputDir, errSource)
	}

	// The source path must be a strict subdirectory of the base output dir
	absBaseSeparator := absBase + string(filepath.Separator)
	if absSource != "" && absSource != absBase && strings.HasPrefix(absSource, absBaseSeparator) {
		err := os.RemoveAll(c.sourceOutputDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed remove source output dir '%s': %w", c.sourceOutputDir, err)
		} else if err == nil {
			c.log.Infof("Removed existing source output directory: %s", c.sourceOutputDir)
		}
		return nil
	}

	errMsg := fmt.Sprintf("safety check failed: would not remove dir (BaseDir: '%s', SourceOutputDir: '%s', BaseAbs: '%s', SourceAbs: '%s')",
		c.appCfg.OutputBaseDir, c.sourceOutputDir, absBase, absSource)
	c.log.Error(errMsg)
	return errors.New(errMsg)
}

// processArticleTask runs the processing stages for a single URL: status and
// policy checks, the fetch/extract pipeline, link discovery, markdown save,
// and structured output. The deferred block owns panic recovery, final status
// logging, the DB status write, and the WaitGroup decrement.
func (c *Crawler) processArticleTask(workItem models.WorkItem, workerLog *logrus.Entry) {
	currentURL := workItem.URL
	currentDepth := workItem.Depth
	taskLog := workerLog.WithFields(logrus.Fields{"url": currentURL, "depth": currentDepth})
	startTime := time.Now()

	taskCtx := c.crawlCtx
	if c.appCfg.PerArticleTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(c.crawlCtx, c.appCfg.PerArticleTimeout)
		defer cancel()
	}

	var taskErr error          // First critical error encountered in the stages
	var skipped bool           // True when the task is skipped without a status change
	var articleTitle string    // Populated on successful extraction
	var savedRelPath string    // Saved markdown path relative to the source output dir
	var normalizedURL string   // Populated during setup; DB status key
	var contentHash string     // Body fingerprint, written to the DB on success
	var extractionMethod string

	defer func() {
		panicked := false
		if r := recover(); r != nil {
			panicked = true
			skipped = false // Panic overrides any prior skip decision
			taskErr = fmt.Errorf("panic: %v", r)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"duration":    time.Since(startTime).String(),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processArticleTask")
		}

		logFields := logrus.Fields{"duration": time.Since(startTime).String()}
		if articleTitle != "" {
			logFields["title"] = articleTitle
		}

		// Duplicates are a terminal skip, not a failure: the page was fine,
		// its body is just already on disk under another URL.
		var finalStatus models.ArticleStatus
		finalErrorType := "None"
		switch {
		case taskErr != nil && errors.Is(taskErr, utils.ErrDuplicateContent):
			finalStatus = models.ArticleStatusSkipped
			finalErrorType = utils.CategorizeError(taskErr)
			taskLog.WithFields(logFields).Infof("Task skipped: %v", taskErr)
		case taskErr != nil:
			finalStatus = models.ArticleStatusFailure
			finalErrorType = utils.CategorizeError(taskErr)
			logFields["category"] = finalErrorType
			if !panicked {
				taskLog.WithFields(logFields).Warnf("Task failed: %v", taskErr)
			}
		case skipped:
			taskLog.WithFields(logFields).Info("Task skipped")
		default:
			finalStatus = models.ArticleStatusSuccess
			if savedRelPath != "" {
				logFields["saved_path"] = savedRelPath
			}
			taskLog.WithFields(logFields).Info("Task completed")
		}

		if finalStatus != models.ArticleStatusUnset && normalizedURL != "" {
			entry := &models.ArticleDBEntry{
				Status:      finalStatus,
				ErrorType:   finalErrorType,
				LastAttempt: time.Now(),
				Depth:       currentDepth,
			}
			if finalStatus == models.ArticleStatusSuccess {
				entry.ProcessedAt = entry.LastAttempt
				entry.ContentHash = contentHash
				entry.Method = extractionMethod
			}
			if dbErr := c.store.UpdateArticleStatus(normalizedURL, entry); dbErr != nil {
				taskLog.Errorf("Failed to update final DB status for '%s' to '%s': %v", normalizedURL, finalStatus, dbErr)
			}
		} else if finalStatus != models.ArticleStatusUnset {
			taskLog.Warnf("URL '%s' normalization failed; cannot update DB status.", currentURL)
		}

		if !skipped {
			c.processedCounter.Add(1)
		}
		c.wg.Done()
	}()

	// Records the first critical error. Returns true if err was non-nil.
	handleTaskError := func(err error) bool {
		if err == nil {
			return false
		}
		if taskErr == nil {
			taskErr = err
		}
		return true
	}

	// 1. Setup: parse, normalize, check prior status in the DB.
	parsedURL, normalized, host, shouldSkip, setupErr := c.setupAndCheckPrior(currentURL, taskLog)
	normalizedURL = normalized
	if handleTaskError(setupErr) {
		return
	}
	if shouldSkip {
		skipped = true
		return
	}
	taskLog = taskLog.WithField("host", host)

	// 2. Policy checks: depth, robots.txt.
	if handleTaskError(c.runPolicyChecks(parsedURL, currentDepth, taskLog)) {
		return
	}

	// 3. Acquire per-host and global concurrency slots.
	cleanupResources, acquireErr := c.acquireResources(host, taskLog)
	defer cleanupResources()
	if handleTaskError(acquireErr) {
		return
	}

	// 4. Fetch and extract through the shared pipeline. A non-nil result
	// alongside an error means the fetch succeeded but extraction did not;
	// the body is still walked for links below, since section fronts and
	// listing pages rarely extract as articles yet link to plenty that do.
	res, pipeErr := c.pipeline.FetchDocument(taskCtx, currentURL, c.pipeOverrides)
	if res == nil {
		handleTaskError(pipeErr)
		return
	}
	if res.Document != nil {
		articleTitle = res.Document.Title
	}

	// 5. Validate the final URL (the fetch may have been redirected).
	finalURL, parseErr := url.Parse(res.FinalURL)
	if parseErr != nil {
		handleTaskError(fmt.Errorf("%w: parsing final URL '%s': %w", utils.ErrParsing, res.FinalURL, parseErr))
		return
	}
	if handleTaskError(c.validateFinalURL(finalURL, host, taskLog)) {
		return
	}

	// 6. Link discovery from the raw body, regardless of extraction outcome.
	c.discoverLinks(res.Body, finalURL, currentDepth, taskLog)

	if handleTaskError(pipeErr) {
		return
	}

	doc := res.Document
	contentHash = doc.ContentHash
	extractionMethod = doc.Method

	// 7. Refresh mode: compare against the stored fingerprint and leave
	// unchanged articles' outputs alone.
	if c.refresh {
		prevHash, exists, hashErr := c.store.GetArticleContentHash(normalizedURL)
		if hashErr != nil {
			taskLog.Warnf("Could not read prior content hash, treating as changed: %v", hashErr)
		} else if exists && prevHash == doc.ContentHash {
			taskLog.Info("Article unchanged since last harvest")
			skipped = true
			return
		}
	}

	// 8. Render and save markdown, then record structured outputs.
	relPath, markdownBytes, writeErr := c.markdownWriter.WriteArticle(doc, finalURL, c.sourceCfg, c.sourceOutputDir, taskLog)
	if handleTaskError(writeErr) {
		return
	}
	savedRelPath = relPath

	c.output.RecordArticle(doc, finalURL.String(), normalizedURL, relPath, markdownBytes, currentDepth, taskLog)
}

// setupAndCheckPrior parses and normalizes the URL and checks its status in
// the DB. Successfully harvested URLs are skipped unless refresh mode is on.
func (c *Crawler) setupAndCheckPrior(currentURL string, taskLog *logrus.Entry) (parsedURL *url.URL, normalizedURL, host string, shouldSkip bool, err error) {
	normalizedURL, parsedURL, parseErr := parse.ParseAndNormalize(currentURL)
	if parseErr != nil {
		err = fmt.Errorf("%w: parsing URL '%s': %w", utils.ErrParsing, currentURL, parseErr)
		return nil, "", "", false, err
	}

	host = parsedURL.Hostname()
	if host == "" {
		err = fmt.Errorf("URL '%s' missing host", currentURL)
		return parsedURL, normalizedURL, "", false, err
	}

	status, _, checkErr := c.store.CheckArticleStatus(normalizedURL)
	if checkErr != nil {
		taskLog.Errorf("DB error checking status for '%s', proceeding as if not found: %v", normalizedURL, checkErr)
		return parsedURL, normalizedURL, host, false, nil
	}
	switch {
	case status.IsTerminal():
		if !c.refresh {
			taskLog.Debug("Skipping already processed article (from DB).")
			return parsedURL, normalizedURL, host, true, nil
		}
		taskLog.Debug("Refresh mode: re-fetching previously harvested article.")
	case status == models.ArticleStatusFailure:
		taskLog.Warn("Retrying previously failed article (from DB).")
	case status == models.ArticleStatusPending:
		taskLog.Debug("Processing article previously marked pending (from DB).")
	}

	return parsedURL, normalizedURL, host, false, nil
}

// runPolicyChecks verifies depth and robots.txt policy for the URL.
func (c *Crawler) runPolicyChecks(parsedURL *url.URL, depth int, taskLog *logrus.Entry) error {
	// The link processor refuses to queue past max_depth, so this only trips
	// for DB-requeued items recorded under a deeper earlier config.
	if c.sourceCfg.MaxDepth > 0 && depth > c.sourceCfg.MaxDepth {
		err := utils.ErrMaxDepthExceeded
		taskLog.Infof("%s (depth: %d, max_depth: %d)", err.Error(), depth, c.sourceCfg.MaxDepth)
		return err
	}

	if !c.robotsHandler.TestAgent(parsedURL, c.userAgent, c.crawlCtx) {
		err := fmt.Errorf("%w: URL '%s' disallowed for agent '%s'", utils.ErrRobotsDisallowed, parsedURL.RequestURI(), c.userAgent)
		taskLog.Warn(err.Error())
		return err
	}
	return nil
}

// acquireResources takes the per-host and global concurrency slots, in that
// order. The returned cleanup releases whatever was acquired and is safe to
// call unconditionally.
func (c *Crawler) acquireResources(host string, taskLog *logrus.Entry) (cleanupFunc func(), err error) {
	acquiredHostSem, acquiredGlobalSem := false, false
	cleanupFunc = func() {
		if acquiredHostSem {
			c.hostSemPool.Release(host)
		}
		if acquiredGlobalSem {
			c.globalSemaphore.Release(1)
		}
	}

	semTimeout := c.appCfg.SemaphoreAcquireTimeout

	ctxHost, cancelHost := context.WithTimeout(c.crawlCtx, semTimeout)
	defer cancelHost()
	if semErr := c.hostSemPool.Acquire(ctxHost, host); semErr != nil {
		return cleanupFunc, fmt.Errorf("%w: acquire host semaphore for '%s': %w", utils.ErrSemaphoreTimeout, host, semErr)
	}
	acquiredHostSem = true

	ctxGlobal, cancelGlobal := context.WithTimeout(c.crawlCtx, semTimeout)
	defer cancelGlobal()
	if semErr := c.globalSemaphore.Acquire(ctxGlobal, 1); semErr != nil {
		return cleanupFunc, fmt.Errorf("%w: acquire global semaphore: %w", utils.ErrSemaphoreTimeout, semErr)
	}
	acquiredGlobalSem = true

	taskLog.Debug("Acquired host and global semaphores.")
	return cleanupFunc, nil
}

// validateFinalURL re-applies scope and policy checks to the post-redirect
// URL: domain and path prefix, disallowed patterns, and a robots.txt
// re-check when the redirect crossed hosts.
func (c *Crawler) validateFinalURL(finalURL *url.URL, originalHost string, taskLog *logrus.Entry) error {
	finalPath := finalURL.Path
	if finalPath == "" {
		finalPath = "/"
	}

	if finalURL.Hostname() != c.sourceCfg.AllowedDomain || !strings.HasPrefix(finalPath, c.sourceCfg.AllowedPathPrefix) {
		return fmt.Errorf("%w: redirected URL '%s' out of scope (expected domain '%s', path prefix '%s')",
			utils.ErrScopeViolation, finalURL.String(), c.sourceCfg.AllowedDomain, c.sourceCfg.AllowedPathPrefix)
	}

	for _, pattern := range c.compiledDisallowedPatterns {
		if pattern.MatchString(finalURL.Path) {
			return fmt.Errorf("%w: redirected URL '%s' matches disallowed pattern '%s'",
				utils.ErrScopeViolation, finalURL.String(), pattern.String())
		}
	}

	if finalURL.Hostname() != originalHost {
		taskLog.Debugf("Host changed by redirect (%s -> %s), re-checking robots.txt.", originalHost, finalURL.Hostname())
		if !c.robotsHandler.TestAgent(finalURL, c.userAgent, c.crawlCtx) {
			return fmt.Errorf("%w: redirected URL '%s' disallowed by robots.txt on new host",
				utils.ErrRobotsDisallowed, finalURL.String())
		}
	}

	return nil
}

// discoverLinks parses the fetched body and queues in-scope links. Failures
// here never fail the task; link discovery is best-effort.
func (c *Crawler) discoverLinks(body []byte, finalURL *url.URL, currentDepth int, taskLog *logrus.Entry) {
	if len(body) == 0 {
		return
	}

	gqDoc, gqErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if gqErr != nil {
		taskLog.Warnf("Could not parse body for link discovery: %v", gqErr)
		return
	}

	if _, linkErr := c.linkProcessor.ExtractAndQueueLinks(gqDoc, finalURL, currentDepth, c.sourceCfg, &c.wg, taskLog); linkErr != nil {
		taskLog.Warnf("Non-fatal error during link extraction/queueing: %v", linkErr)
	}
}
