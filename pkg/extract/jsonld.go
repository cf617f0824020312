package extract

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// articleTypes are the schema.org types treated as articles.
var articleTypes = map[string]bool{
	"Article":              true,
	"NewsArticle":          true,
	"ReportageNewsArticle": true,
	"BlogPosting":          true,
}

// jsonLDStrategy reads embedded schema.org JSON-LD blocks. It is the most
// reliable source when present: publishers hand us the article verbatim.
type jsonLDStrategy struct {
	log *logrus.Entry
}

func (s *jsonLDStrategy) name() string { return "jsonld" }

func (s *jsonLDStrategy) extract(page *pageContext) (*models.Document, error) {
	var found *models.Document

	page.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		doc, err := s.fromPayload([]byte(sel.Text()))
		if err != nil {
			// A later block on the same page may still parse.
			s.log.WithField("url", page.url.String()).Debugf("Skipping JSON-LD block: %v", err)
			return true
		}
		if doc != nil {
			found = doc
			return false
		}
		return true
	})

	if found == nil {
		return nil, fmt.Errorf("%w in '%s'", utils.ErrNoStructuredData, page.url)
	}
	return found, nil
}

// fromPayload decodes one script block. Publishers embed either a single
// object, a top-level array, or an object carrying an @graph node list.
func (s *jsonLDStrategy) fromPayload(raw []byte) (*models.Document, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON-LD: %v", utils.ErrParsing, err)
	}
	return s.fromValue(payload), nil
}

func (s *jsonLDStrategy) fromValue(v any) *models.Document {
	switch node := v.(type) {
	case map[string]any:
		if doc := s.fromObject(node); doc != nil {
			return doc
		}
		if graph, ok := node["@graph"].([]any); ok {
			return s.fromValue(graph)
		}
	case []any:
		for _, item := range node {
			if doc := s.fromValue(item); doc != nil {
				return doc
			}
		}
	}
	return nil
}

// fromObject maps a recognized article object onto a document. Objects that
// are not articles, or articles missing a headline or body, yield nil so the
// scan can continue with the next node.
func (s *jsonLDStrategy) fromObject(obj map[string]any) *models.Document {
	if !typeMatches(obj["@type"]) {
		return nil
	}

	title, _ := obj["headline"].(string)
	body, _ := obj["articleBody"].(string)
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(body) == "" {
		return nil
	}

	doc := &models.Document{
		Title:       title,
		Author:      authorName(obj["author"]),
		BodyText:    body,
		ContentHTML: paragraphsToHTML(body),
		Method:      models.MethodStructuredData,
	}

	if raw, ok := obj["datePublished"].(string); ok && raw != "" {
		if ts, err := dateparse.ParseAny(raw); err == nil {
			doc.PublishedAt = ts
		} else {
			s.log.Debugf("Unparseable datePublished %q: %v", raw, err)
		}
	}

	return doc
}

// typeMatches reports whether a JSON-LD @type value names an article schema.
// The value is a string or an array of strings, optionally prefixed with a
// schema.org URL.
func typeMatches(v any) bool {
	switch t := v.(type) {
	case string:
		return articleTypes[normalizeSchemaType(t)]
	case []any:
		for _, item := range t {
			if str, ok := item.(string); ok && articleTypes[normalizeSchemaType(str)] {
				return true
			}
		}
	}
	return false
}

func normalizeSchemaType(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimPrefix(t, "https://schema.org/")
	t = strings.TrimPrefix(t, "http://schema.org/")
	return t
}

// authorName flattens the author field, which publishers encode as a bare
// string, a Person/Organization object, or an array of either.
func authorName(v any) string {
	switch a := v.(type) {
	case string:
		return strings.TrimSpace(a)
	case map[string]any:
		if name, ok := a["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	case []any:
		var names []string
		for _, item := range a {
			if name := authorName(item); name != "" {
				names = append(names, name)
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

// paragraphsToHTML rebuilds a minimal HTML fragment from plain article text
// so the markdown output path has something to convert.
func paragraphsToHTML(body string) string {
	var b strings.Builder
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(para))
		b.WriteString("</p>\n")
	}
	return strings.TrimSpace(b.String())
}
