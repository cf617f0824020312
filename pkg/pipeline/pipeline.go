// Package pipeline turns a URL into an extracted article through one
// operation: normalize, consult the cache, fetch under the domain rate
// budget, extract, fingerprint, store. Callers that want single documents
// rather than a full crawl (the MCP tools, ad-hoc harvests) go through here
// instead of wiring the stages themselves.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/cache"
	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/detect"
	"github.com/sriram-pr/article-scraper/pkg/extract"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/parse"
	"github.com/sriram-pr/article-scraper/pkg/ratelimit"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// Fetcher is the document retrieval surface the pipeline depends on.
// *fetch.ResilientFetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// Overrides adjusts a single FetchDocument call. The zero value (or a nil
// pointer) means "use the pipeline's configuration".
type Overrides struct {
	Budget   *ratelimit.Budget  // Rate budget for the URL's host; installed once, then shared by later calls to that host
	Policy   *fetch.RetryPolicy // Retry policy for this request only
	CacheTTL time.Duration      // Lifetime of the stored result; <= 0 keeps the configured default
}

// DocumentResult is the outcome of one FetchDocument call. On a cache hit
// the fetch fields replay the stored response and AttemptCount is zero.
// Document is nil when extraction failed; the fetch fields are still set so
// crawl callers can walk the page for links before acting on the error.
type DocumentResult struct {
	Document     *models.Document
	Body         []byte // Raw page body, for callers that also walk links
	StatusCode   int
	FinalURL     string
	FetchedAt    time.Time
	AttemptCount int
	FromCache    bool
}

// Pipeline binds a fetcher, extractor, response cache, and fingerprint store
// into the single-document operation. All dependencies are required; pass
// cache.NewNoop() or dedupe.NewMemorySet() to opt out of a stage rather than
// nil. Safe for concurrent use.
type Pipeline struct {
	fetcher    Fetcher
	limiters   *ratelimit.DomainLimiter
	cache      cache.Cache
	dedupe     dedupe.Deduplicator
	extractor  *extract.Extractor
	defaultTTL time.Duration
	log        *logrus.Entry
}

// New assembles a Pipeline. The cache TTL default comes from cfg; the
// fetcher's own retry and rate settings are untouched.
func New(cfg *config.AppConfig, fetcher Fetcher, limiters *ratelimit.DomainLimiter, contentCache cache.Cache, deduper dedupe.Deduplicator, extractor *extract.Extractor, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		limiters:   limiters,
		cache:      contentCache,
		dedupe:     deduper,
		extractor:  extractor,
		defaultTTL: cfg.CacheTTL,
		log:        logger.WithField("component", "pipeline"),
	}
}

// FetchDocument retrieves rawURL and returns its extracted article. The URL
// is normalized first; the normalized form is the cache and fingerprint key,
// so tracking-parameter and fragment variants of one page resolve to the same
// stored document. A cache hit returns without touching the network. A body
// whose fingerprint was first recorded under a different URL fails with
// utils.ErrDuplicateContent naming that URL.
//
// When the fetch succeeds but extraction or the duplicate check fails, the
// returned result is non-nil alongside the error and carries the fetched
// body, so listing pages that are not articles themselves can still be
// walked for links. Only fully successful results are cached.
func (p *Pipeline) FetchDocument(ctx context.Context, rawURL string, opts *Overrides) (*DocumentResult, error) {
	normalized, parsedURL, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "invalid url '%s': %v", rawURL, err)
	}
	taskLog := p.log.WithField("url", normalized)

	if entry, ok := p.cache.Get(normalized); ok && entry.Document != nil {
		taskLog.Debug("Serving document from cache")
		return &DocumentResult{
			Document:   entry.Document,
			Body:       entry.Body,
			StatusCode: entry.StatusCode,
			FinalURL:   entry.FinalURL,
			FetchedAt:  entry.FetchedAt,
			FromCache:  true,
		}, nil
	}

	req := fetch.Request{URL: normalized}
	if opts != nil {
		if opts.Budget != nil {
			if err := p.limiters.EnsureBudget(parsedURL.Hostname(), *opts.Budget); err != nil {
				return nil, err
			}
		}
		req.Policy = opts.Policy
	}

	res, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &DocumentResult{
		Body:         res.Body,
		StatusCode:   res.StatusCode,
		FinalURL:     res.FinalURL,
		FetchedAt:    res.FetchedAt,
		AttemptCount: res.AttemptCount,
	}

	doc, err := p.extractor.Extract(res.Body, res.FinalURL)
	if err != nil {
		return result, err
	}
	result.Document = doc

	if err := p.recordFingerprint(doc, normalized, taskLog); err != nil {
		return result, err
	}

	ttl := p.defaultTTL
	if opts != nil && opts.CacheTTL > 0 {
		ttl = opts.CacheTTL
	}
	p.cache.Put(normalized, &cache.Entry{
		StatusCode: res.StatusCode,
		Body:       res.Body,
		Headers:    res.Headers,
		FinalURL:   res.FinalURL,
		FetchedAt:  res.FetchedAt,
		Document:   doc,
	}, ttl)

	return result, nil
}

// recordFingerprint claims doc's content hash for normalizedURL. The hash is
// a duplicate only when a different URL claimed it first; re-fetching the
// claiming URL after its cache entry expired records nothing and passes. A
// failing fingerprint store downgrades to a logged warning so a broken state
// DB cannot stall a harvest.
func (p *Pipeline) recordFingerprint(doc *models.Document, normalizedURL string, taskLog *logrus.Entry) error {
	added, err := p.dedupe.Record(models.ContentFingerprint{
		Hash:         doc.ContentHash,
		FirstSeenURL: normalizedURL,
		FirstSeenAt:  time.Now().UTC(),
	})
	if err != nil {
		taskLog.WithError(err).Warn("Fingerprint store unavailable, skipping duplicate check")
		return nil
	}
	if added {
		return nil
	}

	first, ok, err := p.dedupe.FirstSeen(doc.ContentHash)
	if err != nil || !ok {
		taskLog.WithError(err).Warn("Known fingerprint has no stored origin, keeping document")
		return nil
	}
	if first.FirstSeenURL == normalizedURL {
		return nil
	}
	return fmt.Errorf("%w: body matches %s (first seen %s)",
		utils.ErrDuplicateContent, first.FirstSeenURL, first.FirstSeenAt.Format(time.RFC3339))
}

// PlatformSnapshot reports the publishing platform the extractor detected
// for each host it has seen, or nil when detection is off.
func (p *Pipeline) PlatformSnapshot() map[string]detect.DetectionResult {
	return p.extractor.PlatformSnapshot()
}

// Close releases the cache and fingerprint store. Call once, after the last
// FetchDocument has returned. The fetcher's HTTP client is not owned by the
// pipeline and stays usable.
func (p *Pipeline) Close() error {
	dedupeErr := p.dedupe.Close()
	cacheErr := p.cache.Close()
	if dedupeErr != nil {
		return dedupeErr
	}
	return cacheErr
}
