package process

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/parse"
	"github.com/sriram-pr/article-scraper/pkg/queue"
	"github.com/sriram-pr/article-scraper/pkg/storage"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// LinkProcessor discovers article links on a fetched page and queues the new
// ones. Section fronts and listing pages are where most discovery happens;
// the same pass also picks up related-story links inside articles.
type LinkProcessor struct {
	store                      storage.ArticleStore // To check/mark visited status
	pq                         *queue.WorkQueue     // To queue new work items
	compiledDisallowedPatterns []*regexp.Regexp     // Pre-compiled path exclusion patterns
	log                        *logrus.Logger
}

// NewLinkProcessor creates a LinkProcessor
func NewLinkProcessor(
	store storage.ArticleStore,
	pq *queue.WorkQueue,
	compiledDisallowedPatterns []*regexp.Regexp,
	log *logrus.Logger,
) *LinkProcessor {
	return &LinkProcessor{
		store:                      store,
		pq:                         pq,
		compiledDisallowedPatterns: compiledDisallowedPatterns,
		log:                        log,
	}
}

// ExtractAndQueueLinks finds crawlable links within the configured selectors
// of a page, filters them by scope and policy, and adds unseen ones to the
// work queue at depth+1. It takes the original, unmodified document so links
// stripped from the article body (navigation, related rails) still count for
// discovery.
func (lp *LinkProcessor) ExtractAndQueueLinks(
	originalDoc *goquery.Document,
	finalURL *url.URL, // The final URL of the page (after redirects) to use as base
	currentDepth int,
	sourceCfg config.SourceConfig,
	wg *sync.WaitGroup, // Incremented once per queued item
	taskLog *logrus.Entry,
) (queuedCount int, err error) { // Non-fatal DB errors are returned, not fatal

	nextDepth := currentDepth + 1
	taskLog = taskLog.WithField("next_depth", nextDepth)
	taskLog.Debug("Extracting and queueing links...")
	queuedCount = 0
	var firstDBError error

	// Check max depth for the *next* level before extracting anything
	if sourceCfg.MaxDepth > 0 && nextDepth > sourceCfg.MaxDepth {
		taskLog.Debugf("Max depth (%d) reached/exceeded for next level (%d), skipping link extraction.", sourceCfg.MaxDepth, nextDepth)
		return 0, nil
	}

	// Unique normalized URLs found across all selectors on this page
	foundLinks := make(map[string]string) // Map normalized URL -> original URL (for queuing)

	selectorsToSearch := sourceCfg.LinkExtractionSelectors
	if len(selectorsToSearch) == 0 {
		// Default: search the whole document body
		selectorsToSearch = []string{"body"}
		taskLog.Debug("No link_extraction_selectors defined, defaulting to 'body'")
	} else {
		taskLog.Debugf("Using link_extraction_selectors: %v", selectorsToSearch)
	}

	for _, selector := range selectorsToSearch {
		originalDoc.Find(selector).Find("a[href]").Each(func(index int, element *goquery.Selection) {
			href, exists := element.Attr("href")
			if !exists || href == "" {
				return
			}

			// Check nofollow before resolving the URL
			if sourceCfg.RespectNofollow {
				if rel, _ := element.Attr("rel"); strings.Contains(strings.ToLower(rel), "nofollow") {
					taskLog.Debugf("Skipping nofollow link: %s", href)
					return
				}
			}

			linkURL, parseErr := finalURL.Parse(href)
			if parseErr != nil {
				taskLog.Warnf("Skipping invalid link href '%s' in selector '%s': %v", href, selector, parseErr)
				return
			}
			absoluteLinkURL := linkURL.String()

			// Scheme check: drops mailto:, tel:, javascript:, etc.
			if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
				return
			}

			// Scope: domain
			if linkURL.Hostname() != sourceCfg.AllowedDomain {
				return
			}

			// Scope: path prefix
			targetPath := linkURL.Path
			if targetPath == "" {
				targetPath = "/"
			}
			if !strings.HasPrefix(targetPath, sourceCfg.AllowedPathPrefix) {
				return
			}

			// Scope: disallowed patterns
			for _, pattern := range lp.compiledDisallowedPatterns {
				if pattern.MatchString(linkURL.Path) {
					taskLog.Debugf("Link '%s' disallowed by pattern: %s", absoluteLinkURL, pattern.String())
					return
				}
			}

			// Normalize the valid, in-scope URL; the normalized form is the
			// dedupe key, the original form is what gets fetched
			normalizedLink, _, errNorm := parse.ParseAndNormalize(absoluteLinkURL)
			if errNorm != nil {
				taskLog.Warnf("Cannot normalize extracted link '%s': %v", absoluteLinkURL, errNorm)
				return
			}

			if _, found := foundLinks[normalizedLink]; !found {
				foundLinks[normalizedLink] = absoluteLinkURL
			}
		})
	}

	if len(foundLinks) == 0 {
		taskLog.Debug("No new valid links found to queue.")
		return 0, nil
	}

	taskLog.Debugf("Found %d unique, valid, in-scope links across all specified selectors.", len(foundLinks))
	for normalizedLink, originalLinkURL := range foundLinks {
		// MarkArticleVisited adds the URL if unseen; already-seen URLs
		// (from sitemaps, resume, or other pages) are not requeued
		added, visitErr := lp.store.MarkArticleVisited(normalizedLink)
		if visitErr != nil {
			dbErr := fmt.Errorf("%w: checking/marking link '%s' visited: %w", utils.ErrDatabase, normalizedLink, visitErr)
			taskLog.Error(dbErr)
			if firstDBError == nil {
				firstDBError = dbErr
			}
			continue
		}

		if added {
			wg.Add(1) // Increment WaitGroup *before* adding to queue
			nextWorkItem := models.WorkItem{URL: originalLinkURL, Depth: nextDepth}
			lp.pq.Add(&nextWorkItem)
			queuedCount++
			taskLog.Debugf("Queued new link: %s (Normalized: %s)", originalLinkURL, normalizedLink)
		} else {
			taskLog.Debugf("Link already visited/pending, skipping queue: %s", normalizedLink)
		}
	}

	taskLog.Infof("Finished link extraction. Queued %d NEW links.", queuedCount)
	return queuedCount, firstDBError
}
