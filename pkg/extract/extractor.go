// Package extract turns fetched page bodies into normalized article documents.
//
// Extraction runs a fixed chain of strategies: structured data (JSON-LD)
// first, then an HTML heuristic pass, then optionally a readability pass.
// The first strategy that yields a body wins; its result is stamped with
// derived fields (word count, content hash) and checked against the
// configured acceptance floor.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/detect"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// Options control how a single Extractor instance behaves. Per-source
// overrides are resolved before construction via OptionsFromConfig.
type Options struct {
	ArticleSelector    string // CSS selector for the content container, empty for auto-detect
	MinParagraphLength int    // Paragraphs shorter than this (in runes) are treated as boilerplate
	MinWordCount       int    // Reject documents whose body falls below this (0 = no floor)
	EnableReadability  bool   // Run the readability pass when the other strategies fail
}

// OptionsFromConfig resolves the effective extraction settings for one source.
func OptionsFromConfig(sourceCfg config.SourceConfig, appCfg config.AppConfig) Options {
	return Options{
		ArticleSelector:    sourceCfg.ArticleSelector,
		MinParagraphLength: config.GetEffectiveMinParagraphLength(sourceCfg, appCfg),
		MinWordCount:       appCfg.MinWordCount,
		EnableReadability:  config.GetEffectiveEnableReadability(sourceCfg, appCfg),
	}
}

// pageContext carries one parsed page through the strategy chain so each
// strategy can pick the representation it needs.
type pageContext struct {
	rawHTML []byte
	doc     *goquery.Document
	url     *url.URL
}

// strategy is one way of pulling an article out of a page. A strategy that
// does not apply to the page returns an error; the chain moves on.
type strategy interface {
	name() string
	extract(page *pageContext) (*models.Document, error)
}

// Extractor converts raw HTML bodies into article documents.
type Extractor struct {
	strategies   []strategy
	detector     *detect.ContentDetector
	minWordCount int
	log          *logrus.Entry
}

// New creates an Extractor with the strategy chain implied by opts.
//
// ArticleSelector can be a CSS selector, the name of a known publishing
// platform ("wordpress", "ghost", ...), or "auto" to sniff the platform
// from the first page seen on each host.
func New(opts Options, logger *logrus.Entry) *Extractor {
	if opts.MinParagraphLength <= 0 {
		opts.MinParagraphLength = 30
	}

	selector := opts.ArticleSelector
	var detector *detect.ContentDetector
	if detect.IsAutoSelector(selector) {
		detector = detect.NewContentDetector(logger)
		selector = ""
	} else if sel := detect.GetCMSSelector(detect.CMS(strings.ToLower(selector))); sel != "" {
		selector = sel
	}

	strategies := []strategy{
		&jsonLDStrategy{log: logger},
		&htmlStrategy{
			articleSelector:    selector,
			minParagraphLength: opts.MinParagraphLength,
			detector:           detector,
			log:                logger,
		},
	}
	if opts.EnableReadability {
		strategies = append(strategies, &readabilityStrategy{log: logger})
	}

	return &Extractor{
		strategies:   strategies,
		detector:     detector,
		minWordCount: opts.MinWordCount,
		log:          logger,
	}
}

// PlatformSnapshot reports the publishing platform detected for each host,
// or nil when the selector was configured explicitly.
func (e *Extractor) PlatformSnapshot() map[string]detect.DetectionResult {
	if e.detector == nil {
		return nil
	}
	return e.detector.Snapshot()
}

// Extract parses body and runs the strategy chain against it. The returned
// document always has a non-empty BodyText; pages where no strategy finds a
// body fail with utils.ErrMissingRequiredField.
func (e *Extractor) Extract(body []byte, pageURL string) (*models.Document, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid page URL '%s': %v", utils.ErrParsing, pageURL, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty response body for '%s'", utils.ErrMalformedHTML, pageURL)
	}

	gqDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedHTML, err)
	}

	page := &pageContext{rawHTML: body, doc: gqDoc, url: parsedURL}

	for _, strat := range e.strategies {
		doc, err := strat.extract(page)
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"url":      pageURL,
				"strategy": strat.name(),
			}).Debugf("Extraction strategy did not apply: %v", err)
			continue
		}
		return e.finalize(doc, pageURL)
	}

	return nil, fmt.Errorf("%w: no extraction strategy produced a body for '%s'", utils.ErrMissingRequiredField, pageURL)
}

// finalize stamps derived fields onto an accepted document and enforces the
// word count floor. The floor is a hard failure: a strategy already claimed
// the page, so falling through to a weaker strategy would not help.
func (e *Extractor) finalize(doc *models.Document, pageURL string) (*models.Document, error) {
	doc.URL = pageURL
	doc.BodyText = strings.TrimSpace(doc.BodyText)
	if doc.BodyText == "" {
		return nil, fmt.Errorf("%w: extracted body is empty for '%s'", utils.ErrMissingRequiredField, pageURL)
	}

	doc.WordCount = len(strings.Fields(doc.BodyText))
	if e.minWordCount > 0 && doc.WordCount < e.minWordCount {
		return nil, fmt.Errorf("%w: body of '%s' is below the acceptance floor (%d words < %d)",
			utils.ErrMissingRequiredField, pageURL, doc.WordCount, e.minWordCount)
	}

	doc.ContentHash = dedupe.Hash(doc.BodyText)
	return doc, nil
}
