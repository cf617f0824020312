package detect

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// CMS identifies the publishing platform behind a news site.
type CMS string

const (
	CMSUnknown   CMS = "unknown"
	CMSWordPress CMS = "wordpress"
	CMSGhost     CMS = "ghost"
	CMSMedium    CMS = "medium"
	CMSSubstack  CMS = "substack"
	CMSArc       CMS = "arc"
	CMSAMP       CMS = "amp"
)

// DetectionResult is the outcome of platform detection for one domain.
type DetectionResult struct {
	CMS      CMS    // Detected platform (or unknown)
	Selector string // CSS selector for the article body container
	Generic  bool   // True when no platform matched and generic containers apply
}

// ContentDetector determines the article container selector for a page and
// memoizes the answer per domain, so detection runs once per host rather
// than once per page.
type ContentDetector struct {
	cache *SelectorCache
	log   *logrus.Entry
}

// NewContentDetector creates a detector with an empty per-domain cache.
func NewContentDetector(log *logrus.Entry) *ContentDetector {
	return &ContentDetector{
		cache: NewSelectorCache(),
		log:   log,
	}
}

// Detect classifies the page's publishing platform and returns the container
// selector to use for it. Results are cached by hostname; the first page of a
// domain decides for the whole harvest.
func (d *ContentDetector) Detect(doc *goquery.Document, pageURL *url.URL) DetectionResult {
	domain := pageURL.Hostname()

	if cached, ok := d.cache.Get(domain); ok {
		d.log.Debugf("Using cached selector for %s: %q (platform: %s)", domain, cached.Selector, cached.CMS)
		return cached
	}

	result := d.detectCMS(doc)
	if result.CMS != CMSUnknown {
		d.log.Infof("Detected %s on %s, using selector: %q", result.CMS, domain, result.Selector)
		d.cache.Set(domain, result)
		return result
	}

	// Nothing matched. Cache that too, so unknown hosts are probed once.
	result = DetectionResult{
		CMS:      CMSUnknown,
		Selector: "",
		Generic:  true,
	}
	d.log.Infof("No known platform markup on %s, falling back to generic article containers", domain)
	d.cache.Set(domain, result)
	return result
}

// Snapshot reports every domain the detector has classified so far.
func (d *ContentDetector) Snapshot() map[string]DetectionResult {
	return d.cache.Snapshot()
}

// detectCMS matches the document against known platform signatures.
func (d *ContentDetector) detectCMS(doc *goquery.Document) DetectionResult {
	html, _ := doc.Html()

	for _, sig := range cmsSignatures {
		if sig.Matches(doc, html) {
			return DetectionResult{
				CMS:      sig.CMS,
				Selector: sig.Selector,
				Generic:  false,
			}
		}
	}

	return DetectionResult{
		CMS:      CMSUnknown,
		Selector: "",
		Generic:  true,
	}
}

// IsAutoSelector reports whether a configured selector value asks for
// automatic platform detection instead of naming a CSS selector.
func IsAutoSelector(selector string) bool {
	return strings.EqualFold(selector, "auto")
}
