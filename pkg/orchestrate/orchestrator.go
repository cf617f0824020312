// Package orchestrate runs harvests for several configured sources in
// parallel over one shared fetch stack: HTTP client, domain rate limiters,
// and the global request semaphore are built once and handed to every
// per-source crawler.
package orchestrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sriram-pr/article-scraper/pkg/cache"
	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/crawler"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/extract"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/pipeline"
	"github.com/sriram-pr/article-scraper/pkg/ratelimit"
	"github.com/sriram-pr/article-scraper/pkg/storage"
)

// SourceResult contains the result of harvesting a single source.
type SourceResult struct {
	SourceKey         string
	Success           bool
	Error             error
	ArticlesProcessed int64
	Duration          time.Duration
}

// Options contains optional parameters for NewOrchestrator.
type Options struct {
	// Refresh re-fetches previously harvested articles and rewrites outputs
	// only where the content changed. Set by the watch scheduler.
	Refresh bool
}

// Orchestrator manages parallel harvesting of multiple sources.
type Orchestrator struct {
	appCfg     *config.AppConfig
	log        *logrus.Entry
	sourceKeys []string
	resume     bool
	refresh    bool

	// Shared across all sources
	limiters        *ratelimit.DomainLimiter
	fetcher         *fetch.ResilientFetcher
	globalSemaphore *semaphore.Weighted

	// Live crawlers, for progress reporting while runs are in flight
	crawlers   map[string]*crawler.Crawler
	crawlersMu sync.Mutex

	results   []SourceResult
	resultsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator for parallel source harvesting.
func NewOrchestrator(appCfg *config.AppConfig, sourceKeys []string, resume bool, log *logrus.Entry) (*Orchestrator, error) {
	return NewOrchestratorWithOptions(appCfg, sourceKeys, resume, log, nil)
}

// NewOrchestratorWithOptions creates an orchestrator with optional settings.
// It builds the shared fetch stack and installs per-source rate budgets on
// the limiter registry, before any worker draws a token.
func NewOrchestratorWithOptions(appCfg *config.AppConfig, sourceKeys []string, resume bool, log *logrus.Entry, opts *Options) (*Orchestrator, error) {
	ctx, cancel := context.WithCancel(context.Background())

	limiters, err := ratelimit.NewDomainLimiter(appCfg.RequestsPerWindow, appCfg.RateWindow, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building shared limiter registry: %w", err)
	}
	for _, key := range sourceKeys {
		sourceCfg, ok := appCfg.Sources[key]
		if !ok {
			continue // harvestSource reports the missing key
		}
		if sourceCfg.RequestsPerWindow == nil && sourceCfg.RateWindow == nil {
			continue
		}
		capacity := config.GetEffectiveRequestsPerWindow(sourceCfg, *appCfg)
		window := config.GetEffectiveRateWindow(sourceCfg, *appCfg)
		if err := limiters.SetBudget(sourceCfg.AllowedDomain, capacity, window); err != nil {
			cancel()
			return nil, fmt.Errorf("installing rate budget for source '%s': %w", key, err)
		}
		log.Infof("Installed rate budget for %s: %d requests per %v", sourceCfg.AllowedDomain, capacity, window)
	}

	client := fetch.NewClient(appCfg.HTTPClientSettings, log.Logger)
	fetcher := fetch.NewResilientFetcher(client, limiters, appCfg, log)

	refresh := false
	if opts != nil {
		refresh = opts.Refresh
	}

	return &Orchestrator{
		appCfg:          appCfg,
		log:             log,
		sourceKeys:      sourceKeys,
		resume:          resume,
		refresh:         refresh,
		limiters:        limiters,
		fetcher:         fetcher,
		globalSemaphore: semaphore.NewWeighted(int64(appCfg.MaxRequests)),
		crawlers:        make(map[string]*crawler.Crawler),
		results:         make([]SourceResult, 0, len(sourceKeys)),
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Run starts harvesting all sources in parallel and waits for completion.
func (o *Orchestrator) Run() []SourceResult {
	startTime := time.Now()
	o.log.Infof("Starting parallel harvest of %d sources: %v", len(o.sourceKeys), o.sourceKeys)

	var wg sync.WaitGroup
	for _, sourceKey := range o.sourceKeys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			result := o.harvestSource(key)
			o.resultsMu.Lock()
			o.results = append(o.results, result)
			o.resultsMu.Unlock()
		}(sourceKey)
	}
	wg.Wait()

	o.logSummary(time.Since(startTime))
	return o.results
}

// harvestSource harvests a single source over the shared fetch stack. The
// store, cache, dedupe set, and extractor are per-source; the cache and
// fingerprint keys carry the source's domain, so sharing them would buy
// nothing while coupling unrelated sources' state.
func (o *Orchestrator) harvestSource(sourceKey string) SourceResult {
	startTime := time.Now()
	result := SourceResult{SourceKey: sourceKey}
	sourceLog := o.log.WithField("source_key", sourceKey)

	sourceCfg, exists := o.appCfg.Sources[sourceKey]
	if !exists {
		result.Error = fmt.Errorf("source '%s' not found in configuration", sourceKey)
		sourceLog.Error("Source not found in configuration")
		return result
	}

	sourceCtx, sourceCancel := context.WithCancel(o.ctx)
	defer sourceCancel()

	// Refresh needs the prior statuses and fingerprints, so the state DB
	// survives like a resume.
	keepState := o.resume || o.refresh
	store, err := storage.NewBadgerStore(sourceCtx, o.appCfg.StateDir, sourceCfg.AllowedDomain, keepState, sourceLog)
	if err != nil {
		result.Error = fmt.Errorf("opening harvest store for '%s': %w", sourceKey, err)
		sourceLog.Errorf("Failed to open harvest store: %v", err)
		return result
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			sourceLog.Errorf("Error closing harvest store: %v", closeErr)
		}
	}()
	go store.RunGC(sourceCtx, 0)

	extractor := extract.New(extract.OptionsFromConfig(sourceCfg, *o.appCfg), sourceLog)
	contentCache := cache.New(o.appCfg, store, sourceLog)
	deduper := dedupe.New(o.appCfg, store, sourceLog)
	pl := pipeline.New(o.appCfg, o.fetcher, o.limiters, contentCache, deduper, extractor, o.log.Logger)
	defer func() {
		if closeErr := pl.Close(); closeErr != nil {
			sourceLog.Errorf("Error closing pipeline: %v", closeErr)
		}
	}()

	opts := &crawler.Options{
		SharedSemaphore: o.globalSemaphore,
		Refresh:         o.refresh,
	}
	c, err := crawler.NewCrawlerWithOptions(*o.appCfg, sourceCfg, sourceKey, o.log, store, o.fetcher, pl, sourceCtx, sourceCancel, opts)
	if err != nil {
		result.Error = fmt.Errorf("building crawler for '%s': %w", sourceKey, err)
		sourceLog.Errorf("Failed to build crawler: %v", err)
		return result
	}

	o.crawlersMu.Lock()
	o.crawlers[sourceKey] = c
	o.crawlersMu.Unlock()
	defer func() {
		o.crawlersMu.Lock()
		delete(o.crawlers, sourceKey)
		o.crawlersMu.Unlock()
	}()

	sourceLog.Info("Starting harvest")
	runErr := c.Run(o.resume)

	progress := c.GetProgress()
	result.ArticlesProcessed = progress.ArticlesProcessed
	result.Duration = time.Since(startTime)
	if runErr != nil {
		result.Error = runErr
		sourceLog.Errorf("Harvest failed: %v", runErr)
	} else {
		result.Success = true
		sourceLog.Info("Harvest completed")
	}
	return result
}

// Cancel cancels all running harvests.
func (o *Orchestrator) Cancel() {
	o.log.Info("Cancelling all harvests...")
	o.cancel()
}

// GetProgress returns a progress snapshot: live figures for sources still
// running, final figures for sources already finished.
func (o *Orchestrator) GetProgress() []crawler.Progress {
	progress := make([]crawler.Progress, 0, len(o.sourceKeys))

	o.crawlersMu.Lock()
	for _, c := range o.crawlers {
		progress = append(progress, c.GetProgress())
	}
	o.crawlersMu.Unlock()

	o.resultsMu.Lock()
	for _, r := range o.results {
		progress = append(progress, crawler.Progress{
			SourceKey:         r.SourceKey,
			ArticlesProcessed: r.ArticlesProcessed,
			IsRunning:         false,
		})
	}
	o.resultsMu.Unlock()

	return progress
}

// logSummary logs a summary of all harvest results.
func (o *Orchestrator) logSummary(totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Parallel harvest completed in %v", totalDuration)
	o.log.Info("Source results:")

	var totalArticles int64
	successCount := 0
	failCount := 0

	for _, r := range o.results {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
			failCount++
		} else {
			successCount++
		}
		totalArticles += r.ArticlesProcessed

		o.log.Infof("  %s: %s - %d articles in %v", r.SourceKey, status, r.ArticlesProcessed, r.Duration)
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d sources (%d success, %d failed), %d articles processed",
		len(o.results), successCount, failCount, totalArticles)
	o.log.Info("============================================")
}

// ValidateSourceKeys checks that all provided source keys exist in the config.
func ValidateSourceKeys(appCfg *config.AppConfig, sourceKeys []string) error {
	for _, key := range sourceKeys {
		if _, exists := appCfg.Sources[key]; !exists {
			available := make([]string, 0, len(appCfg.Sources))
			for k := range appCfg.Sources {
				available = append(available, k)
			}
			return fmt.Errorf("source '%s' not found. Available sources: %v", key, available)
		}
	}
	return nil
}

// GetAllSourceKeys returns all source keys from the config.
func GetAllSourceKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Sources))
	for k := range appCfg.Sources {
		keys = append(keys, k)
	}
	return keys
}
