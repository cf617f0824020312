package process

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// MarkdownWriter renders extracted articles to markdown files under a
// source's output directory. The extraction layer hands it the content
// fragment the body came from; the writer cleans residual boilerplate,
// rewrites links to other harvested articles, converts to markdown, and
// prepends the headline and byline.
type MarkdownWriter struct {
	log *logrus.Logger
}

// NewMarkdownWriter creates a MarkdownWriter
func NewMarkdownWriter(log *logrus.Logger) *MarkdownWriter {
	return &MarkdownWriter{log: log}
}

// WriteArticle converts article content to markdown and saves it to a path
// derived from finalURL and sourceOutputDir. Returns the saved path relative
// to sourceOutputDir (forward slashes) and the rendered markdown, so callers
// can feed the structured outputs without re-reading the file.
func (mw *MarkdownWriter) WriteArticle(
	article *models.Document,
	finalURL *url.URL, // Final URL after redirects
	sourceCfg config.SourceConfig,
	sourceOutputDir string,
	taskLog *logrus.Entry,
) (relPath string, markdown []byte, err error) {
	taskLog.Debug("Converting and saving article markdown...")

	outputPath, inScope := OutputPathForURL(finalURL, sourceCfg, sourceOutputDir)
	if !inScope {
		err = fmt.Errorf("%w: output path calculation failed unexpectedly for in-scope URL '%s'", utils.ErrScopeViolation, finalURL.String())
		taskLog.Error(err)
		return "", nil, err
	}

	body, convertErr := mw.renderBody(article, finalURL, outputPath, sourceCfg, sourceOutputDir, taskLog)
	if convertErr != nil {
		return "", nil, convertErr
	}

	var sb strings.Builder
	if article.Title != "" {
		sb.WriteString("# ")
		sb.WriteString(article.Title)
		sb.WriteString("\n\n")
	}
	if byline := articleByline(article); byline != "" {
		sb.WriteString(byline)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n")
	markdownContent := sb.String()

	outputDir := filepath.Dir(outputPath)
	if mkdirErr := os.MkdirAll(outputDir, 0755); mkdirErr != nil {
		err = fmt.Errorf("%w: creating output directory '%s': %w", utils.ErrFilesystem, outputDir, mkdirErr)
		taskLog.Error(err)
		return "", nil, err
	}

	if writeErr := os.WriteFile(outputPath, []byte(markdownContent), 0644); writeErr != nil {
		err = fmt.Errorf("%w: saving markdown '%s': %w", utils.ErrFilesystem, outputPath, writeErr)
		taskLog.Error(err)
		return "", nil, err
	}

	rel, relErr := filepath.Rel(sourceOutputDir, outputPath)
	if relErr != nil {
		// Join-derived paths always relativize; fall back to the full path
		rel = outputPath
	}
	relPath = filepath.ToSlash(rel)

	taskLog.Infof("Saved article markdown (%d bytes): %s", len(markdownContent), outputPath)
	return relPath, []byte(markdownContent), nil
}

// renderBody produces the markdown body. Pages extracted from structured
// data or HTML carry the originating fragment; it is cleaned and converted.
// Without a fragment the already-plain body text stands in: paragraphs
// separated by blank lines are valid markdown as they are.
func (mw *MarkdownWriter) renderBody(
	article *models.Document,
	finalURL *url.URL,
	outputPath string,
	sourceCfg config.SourceConfig,
	sourceOutputDir string,
	taskLog *logrus.Entry,
) (string, error) {
	if article.ContentHTML == "" {
		return article.BodyText, nil
	}

	fragmentDoc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(article.ContentHTML))
	if parseErr != nil {
		taskLog.Warnf("Content fragment failed to re-parse, using plain body text: %v", parseErr)
		return article.BodyText, nil
	}
	content := fragmentDoc.Find("body")

	cleanupArticleHTML(content)

	if _, rewriteErr := mw.rewriteArticleLinks(content, finalURL, outputPath, sourceCfg, sourceOutputDir, taskLog); rewriteErr != nil {
		taskLog.Warnf("Non-fatal error during article link rewriting: %v", rewriteErr)
	}

	cleanedHTML, htmlErr := content.Html()
	if htmlErr != nil {
		return "", fmt.Errorf("failed getting cleaned fragment HTML: %w", htmlErr)
	}

	converter := md.NewConverter("", true, nil)
	markdown, convertErr := converter.ConvertString(cleanedHTML)
	if convertErr != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrMarkdownConversion, convertErr)
	}
	return markdown, nil
}

// articleByline formats the author and publication date into a single
// emphasized line, or "" when neither is known.
func articleByline(article *models.Document) string {
	var parts []string
	if article.Author != "" {
		parts = append(parts, "By "+article.Author)
	}
	if !article.PublishedAt.IsZero() {
		parts = append(parts, article.PublishedAt.Format("January 2, 2006"))
	}
	if len(parts) == 0 {
		return ""
	}
	return "*" + strings.Join(parts, " | ") + "*"
}

// boilerplateSelectors matches elements that survive extraction on some
// sites but do not belong in the saved article: embedded scripts, share
// widgets, newsletter prompts, related-story rails, ad slots.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe",
	".share", ".social-share", ".sharedaddy", ".share-buttons",
	".related-posts", ".yarpp-related", ".more-stories",
	".newsletter-signup", ".subscription-widget-wrap", "form",
	"[class*='advertisement']", ".ad-container",
}

// cleanupArticleHTML strips boilerplate elements from the content fragment
// before markdown conversion.
func cleanupArticleHTML(content *goquery.Selection) {
	for _, sel := range boilerplateSelectors {
		content.Find(sel).Remove()
	}

	// Icon-only anchors (share/permalink buttons) render as empty links
	content.Find("a").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if text == "" && s.Find("img").Length() == 0 && (href == "" || strings.HasPrefix(href, "#")) {
			s.Remove()
		}
	})
}

// rewriteArticleLinks modifies href attributes of anchor tags within the
// content fragment. Links pointing at other articles inside the harvest
// scope become relative filesystem paths, so the saved corpus cross-links
// locally. Returns the number of links rewritten and the first non-fatal
// error encountered.
func (mw *MarkdownWriter) rewriteArticleLinks(
	content *goquery.Selection,
	finalURL *url.URL, // Base URL for resolving relative hrefs
	currentOutputPath string, // Filesystem path of the current article's file
	sourceCfg config.SourceConfig,
	sourceOutputDir string,
	taskLog *logrus.Entry,
) (rewriteCount int, err error) {
	var firstError error
	currentOutputDir := filepath.Dir(currentOutputPath)

	content.Find("a[href]").Each(func(index int, element *goquery.Selection) {
		href, exists := element.Attr("href")
		if !exists || href == "" {
			return
		}

		// Same-page fragments stay as written. Everything else resolves
		// against the page URL; the scope check below decides whether it
		// points at a harvested article (absolute same-site links included)
		// or stays untouched (mailto:, tel:, external hosts).
		if strings.HasPrefix(href, "#") {
			return
		}

		linkURL, parseErr := finalURL.Parse(href)
		if parseErr != nil {
			taskLog.Warnf("Skipping rewrite for unparseable link href '%s': %v", href, parseErr)
			if firstError == nil {
				firstError = parseErr
			}
			return
		}

		targetOutputPath, isInScope := OutputPathForURL(linkURL, sourceCfg, sourceOutputDir)
		if !isInScope {
			return // Leave out-of-scope links unmodified
		}

		relativePath, relErr := filepath.Rel(currentOutputDir, targetOutputPath)
		if relErr != nil {
			taskLog.Warnf("Could not calculate relative path from '%s' to '%s' for link '%s': %v. Keeping original.", currentOutputDir, targetOutputPath, href, relErr)
			if firstError == nil {
				firstError = relErr
			}
			return
		}

		relativePath = filepath.ToSlash(relativePath)
		if linkURL.Fragment != "" {
			relativePath += "#" + linkURL.Fragment
		}

		element.SetAttr("href", relativePath)
		rewriteCount++
	})

	taskLog.Debugf("Rewrote %d in-scope article links.", rewriteCount)
	return rewriteCount, firstError
}

// pageExtensions lists URL suffixes that are page extensions rather than
// part of the story slug. Only these are swapped for .md; a dot inside a
// slug ("raises-1.5-million") is kept.
var pageExtensions = map[string]bool{
	".html": true, ".htm": true, ".shtml": true, ".xhtml": true,
	".php": true, ".asp": true, ".aspx": true, ".jsp": true,
}

// OutputPathForURL maps an article URL to its local markdown path, applying
// the same scope checks the crawler uses. The trailing path segment becomes
// the file stem (news URLs name the story in the last segment, whether or
// not a trailing slash or .html suffix follows it); meaningful query
// parameters are folded into the stem so id-addressed articles stay
// distinct. Returns the absolute output path and true if the URL is in
// scope, otherwise empty path and false.
func OutputPathForURL(targetURL *url.URL, sourceCfg config.SourceConfig, sourceOutputDir string) (string, bool) {
	// Scope checks: scheme, domain, path prefix
	if (targetURL.Scheme != "http" && targetURL.Scheme != "https") ||
		targetURL.Hostname() != sourceCfg.AllowedDomain {
		return "", false
	}
	targetPath := targetURL.Path
	if targetPath == "" {
		targetPath = "/" // Treat root URL as "/"
	}
	if !strings.HasPrefix(targetPath, sourceCfg.AllowedPathPrefix) {
		return "", false
	}

	normalizedPath := strings.TrimSuffix(targetPath, "/")
	relativePath := strings.TrimPrefix(normalizedPath, sourceCfg.AllowedPathPrefix)
	relativePath = strings.TrimPrefix(relativePath, "/")

	var segments []string
	stem := "index" // Root of the scope (query-addressed roots fold below)
	if relativePath != "" {
		segments = strings.Split(relativePath, "/")
		stem = segments[len(segments)-1]
		if ext := path.Ext(stem); pageExtensions[strings.ToLower(ext)] {
			stem = strings.TrimSuffix(stem, ext)
		}
	}
	if q := targetURL.RawQuery; q != "" {
		stem = stem + "_" + q
	}

	parts := make([]string, 0, len(segments))
	if len(segments) > 1 {
		for _, seg := range segments[:len(segments)-1] {
			if seg != "" {
				parts = append(parts, utils.SanitizeFilename(seg))
			}
		}
	}
	parts = append(parts, utils.SanitizeFilename(stem)+".md")

	return filepath.Join(sourceOutputDir, filepath.Join(parts...)), true
}
