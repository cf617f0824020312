package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/detect"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// htmlStrategy is the heuristic fallback for pages without structured data:
// title from the first top-level heading, body from paragraphs inside the
// primary content container, short paragraphs dropped as boilerplate.
type htmlStrategy struct {
	articleSelector    string
	minParagraphLength int
	detector           *detect.ContentDetector
	log                *logrus.Entry
}

func (s *htmlStrategy) name() string { return "html" }

func (s *htmlStrategy) extract(page *pageContext) (*models.Document, error) {
	container := s.findContainer(page)

	var paragraphs []string
	var fragments []string
	container.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if utf8.RuneCountInString(text) < s.minParagraphLength {
			return
		}
		paragraphs = append(paragraphs, text)
		if frag, err := goquery.OuterHtml(sel); err == nil {
			fragments = append(fragments, strings.TrimSpace(frag))
		}
	})

	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("%w: no paragraphs of at least %d characters in '%s'",
			utils.ErrMissingRequiredField, s.minParagraphLength, page.url)
	}

	doc := &models.Document{
		Title:       s.findTitle(page.doc),
		Author:      strings.TrimSpace(page.doc.Find(`meta[name="author"]`).First().AttrOr("content", "")),
		BodyText:    strings.Join(paragraphs, "\n\n"),
		ContentHTML: strings.Join(fragments, "\n"),
		Method:      models.MethodHTMLFallback,
	}

	if raw := s.findPublished(page.doc); raw != "" {
		if ts, err := dateparse.ParseAny(raw); err == nil {
			doc.PublishedAt = ts
		} else {
			s.log.Debugf("Unparseable published date %q: %v", raw, err)
		}
	}

	return doc, nil
}

// findContainer picks the primary content container. A detected or
// configured selector wins; otherwise the usual semantic wrappers are tried
// before falling back to the whole body.
func (s *htmlStrategy) findContainer(page *pageContext) *goquery.Selection {
	candidates := []string{"article", "main"}
	switch {
	case s.detector != nil:
		if res := s.detector.Detect(page.doc, page.url); res.Selector != "" {
			candidates = append([]string{res.Selector}, candidates...)
		}
	case s.articleSelector != "":
		candidates = append([]string{s.articleSelector}, candidates...)
	}
	for _, sel := range candidates {
		if match := page.doc.Find(sel).First(); match.Length() > 0 {
			return match
		}
	}
	return page.doc.Find("body")
}

// findTitle prefers the first top-level heading, then the document title.
func (s *htmlStrategy) findTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func (s *htmlStrategy) findPublished(doc *goquery.Document) string {
	if v := doc.Find(`meta[property="article:published_time"]`).First().AttrOr("content", ""); v != "" {
		return v
	}
	return doc.Find("time[datetime]").First().AttrOr("datetime", "")
}
