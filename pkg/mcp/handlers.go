package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sriram-pr/article-scraper/pkg/cache"
	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/crawler"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/extract"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/pipeline"
	"github.com/sriram-pr/article-scraper/pkg/storage"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// handleListSources handles the list_sources tool
func (s *Server) handleListSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Get sorted keys for consistent output
	keys := make([]string, 0, len(s.cfg.AppConfig.Sources))
	for k := range s.cfg.AppConfig.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sources := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		sourceCfg := s.cfg.AppConfig.Sources[key]
		sourceInfo := map[string]interface{}{
			"key":              key,
			"domain":           sourceCfg.AllowedDomain,
			"path_prefix":      sourceCfg.AllowedPathPrefix,
			"start_urls_count": len(sourceCfg.StartURLs),
			"max_depth":        sourceCfg.MaxDepth,
		}

		// Check for last harvest info from the metadata file
		lastHarvested := s.getLastHarvestTime(sourceCfg)
		if !lastHarvested.IsZero() {
			sourceInfo["last_harvested"] = lastHarvested.Format(time.RFC3339)
		}

		// Check if currently running
		if s.jobManager.IsRunning(key) {
			sourceInfo["status"] = "running"
		}

		sources = append(sources, sourceInfo)
	}

	result := map[string]interface{}{
		"sources":       sources,
		"config_path":   s.cfg.ConfigPath,
		"total_sources": len(sources),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleExtractArticle handles the extract_article tool
func (s *Server) handleExtractArticle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	sourceKey := request.GetString("source_key", "")

	result, err := s.extractArticle(ctx, urlStr, sourceKey)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// extractArticle runs one URL through the article pipeline and shapes the
// tool response. With a source key the source's extraction settings apply;
// the throwaway pipeline this builds borrows the server's cache and
// fingerprint set, so it is never closed here.
func (s *Server) extractArticle(ctx context.Context, urlStr, sourceKey string) (map[string]interface{}, error) {
	pl := s.adhoc
	var opts *pipeline.Overrides
	if sourceKey != "" {
		sourceCfg, exists := s.cfg.AppConfig.Sources[sourceKey]
		if !exists {
			return nil, fmt.Errorf("source '%s' not found", sourceKey)
		}
		extractor := extract.New(extract.OptionsFromConfig(sourceCfg, *s.cfg.AppConfig), s.log)
		pl = pipeline.New(s.cfg.AppConfig, s.fetcher, s.limiters, s.adhocCache, s.adhocDedupe, extractor, s.log.Logger)
		if sourceCfg.CacheTTL != nil {
			opts = &pipeline.Overrides{CacheTTL: *sourceCfg.CacheTTL}
		}
	}

	startTime := time.Now()
	res, err := pl.FetchDocument(ctx, urlStr, opts)

	var note string
	if err != nil {
		// A duplicate still carries its document; an explicit request for
		// the URL gets the article back with the earlier sighting noted.
		if res == nil || res.Document == nil || !errors.Is(err, utils.ErrDuplicateContent) {
			return nil, err
		}
		note = err.Error()
	}
	doc := res.Document

	// The extraction layer keeps the HTML fragment the body came from;
	// converting that preserves links and emphasis the plain text loses.
	content := doc.BodyText
	if doc.ContentHTML != "" {
		converter := md.NewConverter("", true, nil)
		if converted, convErr := converter.ConvertString(doc.ContentHTML); convErr == nil {
			content = strings.TrimSpace(converted)
		}
	}

	result := map[string]interface{}{
		"url":            res.FinalURL,
		"title":          doc.Title,
		"content":        content,
		"content_length": len(content),
		"word_count":     doc.WordCount,
		"method":         doc.Method,
		"content_hash":   doc.ContentHash,
		"status_code":    res.StatusCode,
		"attempt_count":  res.AttemptCount,
		"from_cache":     res.FromCache,
		"fetch_time_ms":  time.Since(startTime).Milliseconds(),
	}
	if doc.Author != "" {
		result["author"] = doc.Author
	}
	if !doc.PublishedAt.IsZero() {
		result["published_at"] = doc.PublishedAt.Format(time.RFC3339)
	}
	if note != "" {
		result["note"] = note
	}
	return result, nil
}

// handleCrawlSource handles the crawl_source tool
func (s *Server) handleCrawlSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceKey := request.GetString("source_key", "")
	if sourceKey == "" {
		return mcp.NewToolResultError("source_key parameter is required"), nil
	}

	refresh := request.GetBool("refresh", false)

	// Check if the source exists
	sourceCfg, exists := s.cfg.AppConfig.Sources[sourceKey]
	if !exists {
		availableKeys := make([]string, 0, len(s.cfg.AppConfig.Sources))
		for k := range s.cfg.AppConfig.Sources {
			availableKeys = append(availableKeys, k)
		}
		sort.Strings(availableKeys)
		return mcp.NewToolResultError(fmt.Sprintf("source '%s' not found. Available sources: %v", sourceKey, availableKeys)), nil
	}

	// Refuse to stack a second harvest onto a source that already has one
	if existingJob := s.jobManager.GetJobBySource(sourceKey); existingJob != nil {
		result := map[string]interface{}{
			"status":     "already_running",
			"message":    "A harvest is already in progress for this source",
			"job_id":     existingJob.ID,
			"source_key": sourceKey,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	// Create job
	job, err := s.jobManager.CreateJob(sourceKey, refresh)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create job: %v", err)), nil
	}

	// Start harvest in background
	go s.runCrawlJob(job, sourceCfg, sourceKey)

	result := map[string]interface{}{
		"status":     "started",
		"message":    "Harvest started successfully",
		"job_id":     job.ID,
		"source_key": sourceKey,
		"refresh":    refresh,
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleJobStatus handles the job_status tool
func (s *Server) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	return mcp.NewToolResultText(formatJSON(jobSummary(job))), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.jobManager.ListJobs()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})

	summaries := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummary(job))
	}

	result := map[string]interface{}{
		"jobs":       summaries,
		"total_jobs": len(summaries),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	if !s.jobManager.CancelJob(jobID) {
		result := map[string]interface{}{
			"status":  "not_cancelled",
			"message": fmt.Sprintf("Job already finished with status '%s'", job.Status),
			"job_id":  jobID,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	result := map[string]interface{}{
		"status":     "cancelled",
		"message":    "Job cancelled; workers stop after their current article",
		"job_id":     jobID,
		"source_key": job.SourceKey,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// jobSummary shapes one job for a tool response
func jobSummary(job *Job) map[string]interface{} {
	summary := map[string]interface{}{
		"job_id":             job.ID,
		"source_key":         job.SourceKey,
		"status":             job.Status,
		"started_at":         job.StartedAt.Format(time.RFC3339),
		"articles_processed": job.ArticlesProcessed,
		"articles_queued":    job.ArticlesQueued,
		"refresh":            job.Refresh,
	}

	if !job.CompletedAt.IsZero() {
		summary["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		summary["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}

	if job.ErrorMessage != "" {
		summary["error_message"] = job.ErrorMessage
	}

	return summary
}

// handleSearchArticles handles the search_articles tool
func (s *Server) handleSearchArticles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	sourceKey := request.GetString("source_key", "")
	maxResults := request.GetInt("max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	// Determine which sources to search
	sourcesToSearch := s.cfg.AppConfig.Sources
	if sourceKey != "" {
		sourceCfg, exists := s.cfg.AppConfig.Sources[sourceKey]
		if !exists {
			return mcp.NewToolResultError(fmt.Sprintf("source '%s' not found", sourceKey)), nil
		}
		sourcesToSearch = map[string]config.SourceConfig{sourceKey: sourceCfg}
	}

	results := s.searchJSONL(query, sourcesToSearch, maxResults)

	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}

	if sourceKey != "" {
		response["source_key"] = sourceKey
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// runCrawlJob runs a harvest job in the background, wiring the same
// per-source stack the orchestrator builds: a dedicated state store, cache,
// and fingerprint set over the server's shared fetcher and limiter registry.
func (s *Server) runCrawlJob(job *Job, sourceCfg config.SourceConfig, sourceKey string) {
	s.jobManager.UpdateStatus(job.ID, JobStatusRunning, "")
	jobLog := s.log.WithFields(logrus.Fields{"job_id": job.ID, "source_key": sourceKey})
	jobCtx := s.jobManager.GetContext(job.ID)

	// Refresh needs the prior statuses and fingerprints; plain jobs start clean
	store, err := storage.NewBadgerStore(jobCtx, s.cfg.AppConfig.StateDir, sourceCfg.AllowedDomain, job.Refresh, jobLog)
	if err != nil {
		s.jobManager.UpdateStatus(job.ID, JobStatusFailed, fmt.Sprintf("opening harvest store: %v", err))
		return
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			jobLog.Errorf("Error closing harvest store: %v", closeErr)
		}
	}()
	go store.RunGC(jobCtx, 0)

	extractor := extract.New(extract.OptionsFromConfig(sourceCfg, *s.cfg.AppConfig), jobLog)
	contentCache := cache.New(s.cfg.AppConfig, store, jobLog)
	deduper := dedupe.New(s.cfg.AppConfig, store, jobLog)
	pl := pipeline.New(s.cfg.AppConfig, s.fetcher, s.limiters, contentCache, deduper, extractor, s.log.Logger)
	defer func() {
		if closeErr := pl.Close(); closeErr != nil {
			jobLog.Errorf("Error closing pipeline: %v", closeErr)
		}
	}()

	crawlCtx, cancelCrawl := context.WithCancel(jobCtx)
	defer cancelCrawl()

	opts := &crawler.Options{SharedSemaphore: s.globalSemaphore, Refresh: job.Refresh}
	c, err := crawler.NewCrawlerWithOptions(*s.cfg.AppConfig, sourceCfg, sourceKey, s.log, store, s.fetcher, pl, crawlCtx, cancelCrawl, opts)
	if err != nil {
		s.jobManager.UpdateStatus(job.ID, JobStatusFailed, fmt.Sprintf("building crawler: %v", err))
		return
	}

	// Mirror the live crawler counters onto the job while it runs
	pollDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pollDone:
				return
			case <-ticker.C:
				p := c.GetProgress()
				s.jobManager.UpdateProgress(job.ID, p.ArticlesProcessed, int64(p.ArticlesQueued))
			}
		}
	}()

	runErr := c.Run(false)
	close(pollDone)

	final := c.GetProgress()
	s.jobManager.UpdateProgress(job.ID, final.ArticlesProcessed, int64(final.ArticlesQueued))

	switch {
	case runErr == nil:
		s.jobManager.UpdateStatus(job.ID, JobStatusCompleted, "")
	case errors.Is(runErr, context.Canceled):
		s.jobManager.UpdateStatus(job.ID, JobStatusCancelled, "")
	default:
		s.jobManager.UpdateStatus(job.ID, JobStatusFailed, runErr.Error())
	}
}

// searchJSONL scans the harvested JSONL output of each source for matching
// articles. Sources are visited in key order so a capped result set is stable
// across calls.
func (s *Server) searchJSONL(query string, sources map[string]config.SourceConfig, maxResults int) []map[string]interface{} {
	results := make([]map[string]interface{}, 0)
	queryLower := strings.ToLower(query)

	keys := make([]string, 0, len(sources))
	for k := range sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, sourceKey := range keys {
		sourceCfg := sources[sourceKey]
		sourceOutputDir := filepath.Join(s.cfg.AppConfig.OutputBaseDir, utils.SanitizeFilename(sourceCfg.AllowedDomain))
		jsonlPath := filepath.Join(sourceOutputDir, config.GetEffectiveJSONLOutputFilename(sourceCfg, *s.cfg.AppConfig))

		// Stream the JSONL file line-by-line to avoid loading it all into memory
		file, err := os.Open(jsonlPath)
		if err != nil {
			continue // No harvested output for this source yet
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // up to 10MB per line

		for scanner.Scan() {
			if len(results) >= maxResults {
				break
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var article models.ArticleJSONL
			if err := parseJSONLine(line, &article); err != nil {
				continue
			}

			matched, matchLocation := matchArticle(&article, queryLower)
			if !matched {
				continue
			}

			entry := map[string]interface{}{
				"url":            article.URL,
				"title":          article.Title,
				"snippet":        extractSnippet(article.Content, query, 150),
				"source_key":     sourceKey,
				"match_location": matchLocation,
			}
			if !article.PublishedAt.IsZero() {
				entry["published_at"] = article.PublishedAt.Format(time.RFC3339)
			}
			results = append(results, entry)
		}
		file.Close()

		if len(results) >= maxResults {
			break
		}
	}

	return results
}

// matchArticle reports whether the lowercased query appears in the article's
// title, content, or headings, and which field matched first.
func matchArticle(article *models.ArticleJSONL, queryLower string) (bool, string) {
	if strings.Contains(strings.ToLower(article.Title), queryLower) {
		return true, "title"
	}
	if strings.Contains(strings.ToLower(article.Content), queryLower) {
		return true, "content"
	}
	for _, heading := range article.Headings {
		if strings.Contains(strings.ToLower(heading), queryLower) {
			return true, "headings"
		}
	}
	return false, ""
}

// getLastHarvestTime reads the end time of the last harvest from the source's
// metadata file, or the zero time when none has run yet.
func (s *Server) getLastHarvestTime(sourceCfg config.SourceConfig) time.Time {
	sourceOutputDir := filepath.Join(s.cfg.AppConfig.OutputBaseDir, utils.SanitizeFilename(sourceCfg.AllowedDomain))
	metadataPath := filepath.Join(sourceOutputDir, config.GetEffectiveMetadataYAMLFilename(sourceCfg, *s.cfg.AppConfig))

	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return time.Time{}
	}

	var metadata models.HarvestMetadata
	if err := yaml.Unmarshal(data, &metadata); err != nil {
		return time.Time{}
	}

	return metadata.HarvestEndTime
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	// Find match position in runes
	idx := -1
	for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
		if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	// Calculate start and end positions in rune space
	start := idx - maxLen/2
	if start < 0 {
		start = 0
	}

	end := idx + len(queryRunes) + maxLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}

	return snippet
}

// parseJSONLine parses a single JSON line into an ArticleJSONL record
func parseJSONLine(line string, article *models.ArticleJSONL) error {
	return json.Unmarshal([]byte(line), article)
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
