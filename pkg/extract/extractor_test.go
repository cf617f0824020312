package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/detect"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testExtractor(opts Options) *Extractor {
	return New(opts, testLogger())
}

// --- Structured data path ---

func TestExtract_JSONLD_NewsArticle(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head>
<title>Site Title | Publisher</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "NewsArticle",
  "headline": "Central Bank Holds Rates Steady",
  "datePublished": "2025-03-14T09:30:00Z",
  "author": {"@type": "Person", "name": "Dana Reyes"},
  "articleBody": "The central bank left its benchmark rate unchanged on Friday.\n\nPolicymakers cited cooling inflation and a stable labor market as reasons to wait for more data before moving again."
}
</script>
</head>
<body>
<article>
<h1>Different Heading</h1>
<p>This paragraph exists only in the markup and should not be chosen when structured data is present.</p>
</article>
</body>
</html>`

	e := testExtractor(Options{})
	doc, err := e.Extract([]byte(html), "https://news.example.com/rates")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if doc.Method != models.MethodStructuredData {
		t.Errorf("Method = %q, want %q", doc.Method, models.MethodStructuredData)
	}
	if doc.URL != "https://news.example.com/rates" {
		t.Errorf("URL = %q, want the page URL", doc.URL)
	}
	if doc.Title != "Central Bank Holds Rates Steady" {
		t.Errorf("Title = %q, want the headline", doc.Title)
	}
	if doc.Author != "Dana Reyes" {
		t.Errorf("Author = %q, want %q", doc.Author, "Dana Reyes")
	}

	wantPublished := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	if !doc.PublishedAt.Equal(wantPublished) {
		t.Errorf("PublishedAt = %v, want %v", doc.PublishedAt, wantPublished)
	}

	wantBody := "The central bank left its benchmark rate unchanged on Friday.\n\n" +
		"Policymakers cited cooling inflation and a stable labor market as reasons to wait for more data before moving again."
	if doc.BodyText != wantBody {
		t.Errorf("BodyText = %q, want the articleBody verbatim", doc.BodyText)
	}
	if doc.WordCount != 29 {
		t.Errorf("WordCount = %d, want 29", doc.WordCount)
	}
	if doc.ContentHash != dedupe.Hash(doc.BodyText) {
		t.Error("ContentHash does not match the body fingerprint")
	}
	if !strings.Contains(doc.ContentHTML, "<p>The central bank") {
		t.Errorf("ContentHTML = %q, want paragraph markup", doc.ContentHTML)
	}
}

func TestExtract_JSONLD_AuthorVariants(t *testing.T) {
	pageTemplate := `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@type": "Article",
  "headline": "Harbor Expansion Approved",
  %s
  "articleBody": "The port authority voted to expand the eastern terminal after two years of environmental review."
}
</script>
</head><body></body></html>`

	tests := []struct {
		name       string
		authorJSON string
		want       string
	}{
		{
			name:       "String",
			authorJSON: `"author": "Newsroom Staff",`,
			want:       "Newsroom Staff",
		},
		{
			name:       "PersonObject",
			authorJSON: `"author": {"@type": "Person", "name": "Ana Sol"},`,
			want:       "Ana Sol",
		},
		{
			name:       "ArrayOfPersons",
			authorJSON: `"author": [{"@type": "Person", "name": "Ana Sol"}, {"@type": "Person", "name": "Ben Ortiz"}],`,
			want:       "Ana Sol, Ben Ortiz",
		},
		{
			name:       "Missing",
			authorJSON: ``,
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := fmt.Sprintf(pageTemplate, tt.authorJSON)
			e := testExtractor(Options{})
			doc, err := e.Extract([]byte(html), "https://news.example.com/harbor")
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if doc.Author != tt.want {
				t.Errorf("Author = %q, want %q", doc.Author, tt.want)
			}
			if doc.Method != models.MethodStructuredData {
				t.Errorf("Method = %q, want %q", doc.Method, models.MethodStructuredData)
			}
		})
	}
}

func TestExtract_JSONLD_GraphPayload(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {"@type": "WebSite", "name": "Example News"},
    {
      "@type": "NewsArticle",
      "headline": "Ferry Service Resumes",
      "articleBody": "Ferries returned to the harbor crossing on Monday after a month of dock repairs kept the route closed."
    }
  ]
}
</script>
</head><body></body></html>`

	e := testExtractor(Options{})
	doc, err := e.Extract([]byte(html), "https://news.example.com/ferry")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Title != "Ferry Service Resumes" {
		t.Errorf("Title = %q, want the @graph article headline", doc.Title)
	}
	if doc.Method != models.MethodStructuredData {
		t.Errorf("Method = %q, want %q", doc.Method, models.MethodStructuredData)
	}
}

func TestExtract_JSONLD_ArrayPayload(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
[
  {"@type": "WebPage", "name": "Some page"},
  {
    "@type": "BlogPosting",
    "headline": "Notes on the Migration",
    "articleBody": "We moved the archive to new storage over the weekend and nothing caught fire, which counts as a win."
  }
]
</script>
</head><body></body></html>`

	e := testExtractor(Options{})
	doc, err := e.Extract([]byte(html), "https://blog.example.com/migration")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Title != "Notes on the Migration" {
		t.Errorf("Title = %q, want the BlogPosting headline", doc.Title)
	}
}

func TestExtract_JSONLD_TypeVariants(t *testing.T) {
	pageTemplate := `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@type": %s,
  "headline": "Budget Vote Delayed",
  "articleBody": "Council members postponed the final budget vote until next week to review late amendments."
}
</script>
</head><body></body></html>`

	tests := []struct {
		name     string
		typeJSON string
	}{
		{"ReportageNewsArticle", `"ReportageNewsArticle"`},
		{"TypeArray", `["ReportageNewsArticle", "NewsArticle"]`},
		{"SchemaOrgURL", `"https://schema.org/NewsArticle"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := fmt.Sprintf(pageTemplate, tt.typeJSON)
			e := testExtractor(Options{})
			doc, err := e.Extract([]byte(html), "https://news.example.com/budget")
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if doc.Method != models.MethodStructuredData {
				t.Errorf("Method = %q, want %q", doc.Method, models.MethodStructuredData)
			}
		})
	}
}

func TestExtract_JSONLD_MalformedBlockFallsThrough(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{"@type": "NewsArticle", "headline": "Broken", "articleBody": "never closed
</script>
<script type="application/ld+json">
{
  "@type": "NewsArticle",
  "headline": "Second Block Wins",
  "articleBody": "A later script block on the same page still counts when an earlier one fails to parse."
}
</script>
</head><body></body></html>`

	e := testExtractor(Options{})
	doc, err := e.Extract([]byte(html), "https://news.example.com/blocks")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Title != "Second Block Wins" {
		t.Errorf("Title = %q, want the second block's headline", doc.Title)
	}
	if doc.Method != models.MethodStructuredData {
		t.Errorf("Method = %q, want %q", doc.Method, models.MethodStructuredData)
	}
}

func TestExtract_JSONLD_IncompleteFallsBackToHTML(t *testing.T) {
	pageTemplate := `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">%s</script>
</head>
<body>
<article>
<h1>Markup Wins Here</h1>
<p>When structured data is unusable the markup paragraphs still carry the story for readers.</p>
</article>
</body></html>`

	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "UnrecognizedType",
			payload: `{"@type": "Product", "headline": "Not An Article", "articleBody": "Catalog text that should be ignored by extraction."}`,
		},
		{
			name:    "MissingBody",
			payload: `{"@type": "NewsArticle", "headline": "Headline Without Body"}`,
		},
		{
			name:    "WhitespaceHeadline",
			payload: `{"@type": "NewsArticle", "headline": "   ", "articleBody": "Body with a blank headline should not be accepted as structured data."}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := fmt.Sprintf(pageTemplate, tt.payload)
			e := testExtractor(Options{})
			doc, err := e.Extract([]byte(html), "https://news.example.com/fallback")
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if doc.Method != models.MethodHTMLFallback {
				t.Errorf("Method = %q, want %q", doc.Method, models.MethodHTMLFallback)
			}
			if doc.Title != "Markup Wins Here" {
				t.Errorf("Title = %q, want the page heading", doc.Title)
			}
		})
	}
}

// --- HTML fallback path ---

func TestExtract_HTMLFallback(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Transit Plan | Example News</title></head>
<body>
<nav><p>Subscribe to our newsletter for daily updates delivered straight to your inbox every morning.</p></nav>
<article>
<h1>Transit Plan Moves Forward</h1>
<p>The commission approved the new transit plan after a lengthy public hearing on Tuesday evening.</p>
<p>Read more.</p>
<p>Construction is expected to begin next spring and continue for roughly three years.</p>
</article>
</body>
</html>`

	e := testExtractor(Options{MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://news.example.com/transit")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if doc.Method != models.MethodHTMLFallback {
		t.Errorf("Method = %q, want %q", doc.Method, models.MethodHTMLFallback)
	}
	if doc.Title != "Transit Plan Moves Forward" {
		t.Errorf("Title = %q, want the h1 text", doc.Title)
	}
	if !strings.Contains(doc.BodyText, "commission approved") {
		t.Error("BodyText missing the first paragraph")
	}
	if !strings.Contains(doc.BodyText, "begin next spring") {
		t.Error("BodyText missing the second paragraph")
	}
	if strings.Contains(doc.BodyText, "Read more") {
		t.Error("BodyText kept a paragraph below the length floor")
	}
	if strings.Contains(doc.BodyText, "Subscribe") {
		t.Error("BodyText kept boilerplate from outside the content container")
	}
	if doc.ContentHash != dedupe.Hash(doc.BodyText) {
		t.Error("ContentHash does not match the body fingerprint")
	}
	if !strings.Contains(doc.ContentHTML, "<p>") {
		t.Errorf("ContentHTML = %q, want the kept paragraph markup", doc.ContentHTML)
	}
}

func TestExtract_HTMLFallback_TitleFromDocumentTitle(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Fallback Title</title></head>
<body>
<article>
<p>Pages without a heading element still get a title from the document head when one exists.</p>
</article>
</body>
</html>`

	e := testExtractor(Options{MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://news.example.com/no-h1")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Title != "Fallback Title" {
		t.Errorf("Title = %q, want the document title", doc.Title)
	}
}

func TestExtract_HTMLFallback_CustomSelector(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<body>
<article>
<p>Generic wrapper text that the per-site selector is supposed to bypass completely here.</p>
</article>
<div class="story-body">
<p>The selector override points at this container, so only these paragraphs belong in the body.</p>
</div>
</body>
</html>`

	e := testExtractor(Options{ArticleSelector: "div.story-body", MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://news.example.com/custom")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(doc.BodyText, "selector override") {
		t.Error("BodyText missing the configured container's paragraph")
	}
	if strings.Contains(doc.BodyText, "Generic wrapper") {
		t.Error("BodyText includes text outside the configured container")
	}
}

func TestExtract_AutoSelectorDetectsPlatform(t *testing.T) {
	// WordPress markup: the body lives in .entry-content inside the article
	// element, next to a share footer whose paragraph is long enough to
	// survive the boilerplate floor. Platform detection must narrow the
	// container to .entry-content; without it the footer leaks in.
	html := `<!DOCTYPE html>
<html>
<head>
<title>Harbor Expansion Approved</title>
<meta name="generator" content="WordPress 6.4.2">
<link rel="stylesheet" href="/wp-content/themes/daily/style.css">
</head>
<body>
<article class="post">
<header><h1>Harbor Expansion Approved</h1></header>
<div class="entry-content">
<p>The city council approved the harbor expansion plan on Tuesday after a four hour session.</p>
<p>Construction is expected to begin next spring and continue for roughly three years.</p>
</div>
<footer>
<p>Share this story with your friends and subscribe to our newsletter for more local coverage.</p>
</footer>
</article>
</body>
</html>`

	e := testExtractor(Options{ArticleSelector: "auto", MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://news.example.com/harbor-expansion")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(doc.BodyText, "harbor expansion plan") {
		t.Error("BodyText missing the entry-content paragraph")
	}
	if strings.Contains(doc.BodyText, "subscribe to our newsletter") {
		t.Error("BodyText includes the share footer outside the detected container")
	}

	snapshot := e.PlatformSnapshot()
	if snapshot == nil {
		t.Fatal("PlatformSnapshot returned nil with auto-detection enabled")
	}
	if got := snapshot["news.example.com"]; got.CMS != detect.CMSWordPress {
		t.Errorf("Detected platform = %s, want %s", got.CMS, detect.CMSWordPress)
	}
}

func TestExtract_PlatformNameSelector(t *testing.T) {
	// A source config can name the platform instead of spelling out the
	// selector. "ghost" resolves to the Ghost content container.
	html := `<!DOCTYPE html>
<html>
<head><title>Ferry Schedule Changes</title></head>
<body>
<main class="gh-canvas">
<section class="gh-content">
<p>The ferry operator published a reduced winter schedule starting the first week of November.</p>
</section>
<aside>
<p>Sign up for the morning briefing and never miss a story from the waterfront desk again.</p>
</aside>
</main>
</body>
</html>`

	e := testExtractor(Options{ArticleSelector: "ghost", MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://bulletin.example.com/ferry-schedule")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(doc.BodyText, "reduced winter schedule") {
		t.Error("BodyText missing the gh-content paragraph")
	}
	if strings.Contains(doc.BodyText, "morning briefing") {
		t.Error("BodyText includes the aside outside the platform container")
	}
	if e.PlatformSnapshot() != nil {
		t.Error("PlatformSnapshot should be nil when the selector is configured explicitly")
	}
}

func TestExtract_HTMLFallback_ContainerPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantText string
	}{
		{
			name: "MainWhenNoArticle",
			html: `<html><body>
<main><p>Content inside the main element is used when no article element is present.</p></main>
</body></html>`,
			wantText: "main element",
		},
		{
			name: "BodyWhenNoSemanticContainer",
			html: `<html><body>
<div><p>Plain pages without semantic wrappers fall back to scanning the whole document body.</p></div>
</body></html>`,
			wantText: "semantic wrappers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testExtractor(Options{MinParagraphLength: 30})
			doc, err := e.Extract([]byte(tt.html), "https://news.example.com/containers")
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if !strings.Contains(doc.BodyText, tt.wantText) {
				t.Errorf("BodyText = %q, want it to contain %q", doc.BodyText, tt.wantText)
			}
		})
	}
}

func TestExtract_HTMLFallback_MetaAuthorAndPublished(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head>
<meta name="author" content="Lena Grove">
<meta property="article:published_time" content="2024-11-02T08:00:00Z">
</head>
<body>
<article>
<h1>Storm Cleanup Continues</h1>
<p>Crews worked through the weekend clearing downed branches from the coastal road network.</p>
</article>
</body>
</html>`

	e := testExtractor(Options{MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://news.example.com/storm")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Author != "Lena Grove" {
		t.Errorf("Author = %q, want the meta author", doc.Author)
	}
	wantPublished := time.Date(2024, 11, 2, 8, 0, 0, 0, time.UTC)
	if !doc.PublishedAt.Equal(wantPublished) {
		t.Errorf("PublishedAt = %v, want %v", doc.PublishedAt, wantPublished)
	}
}

func TestExtract_HTMLFallback_LengthFloorIsRunes(t *testing.T) {
	// 20 runes but 40 bytes; a byte-based floor of 30 would wrongly keep it.
	html := `<html><body><article><p>` + strings.Repeat("ü", 20) + `</p></article></body></html>`

	e := testExtractor(Options{MinParagraphLength: 30})
	_, err := e.Extract([]byte(html), "https://news.example.com/runes")
	if !errors.Is(err, utils.ErrMissingRequiredField) {
		t.Errorf("expected ErrMissingRequiredField for rune-short paragraph, got %v", err)
	}
}

// --- Failure modes ---

func TestExtract_NoUsableContent(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Nav Only</title></head>
<body>
<nav><p>Home</p><p>About</p></nav>
</body>
</html>`

	e := testExtractor(Options{MinParagraphLength: 30})
	doc, err := e.Extract([]byte(html), "https://news.example.com/empty")
	if doc != nil {
		t.Fatalf("expected no document, got %+v", doc)
	}
	if !errors.Is(err, utils.ErrMissingRequiredField) {
		t.Errorf("expected ErrMissingRequiredField, got %v", err)
	}
	// The structured-data miss is an internal signal, not a caller-facing error.
	if errors.Is(err, utils.ErrNoStructuredData) {
		t.Errorf("ErrNoStructuredData leaked to the caller: %v", err)
	}
}

func TestExtract_EmptyBody(t *testing.T) {
	e := testExtractor(Options{})
	_, err := e.Extract([]byte("  \n \t"), "https://news.example.com/blank")
	if !errors.Is(err, utils.ErrMalformedHTML) {
		t.Errorf("expected ErrMalformedHTML for empty body, got %v", err)
	}
}

func TestExtract_InvalidURL(t *testing.T) {
	e := testExtractor(Options{})
	_, err := e.Extract([]byte("<html><body></body></html>"), "://missing-scheme")
	if !errors.Is(err, utils.ErrParsing) {
		t.Errorf("expected ErrParsing for invalid URL, got %v", err)
	}
}

func TestExtract_WordCountFloor(t *testing.T) {
	t.Run("HTMLBodyBelowFloor", func(t *testing.T) {
		html := `<html><body><article>
<p>Short filler sentence that clears the paragraph floor.</p>
</article></body></html>`

		e := testExtractor(Options{MinParagraphLength: 30, MinWordCount: 50})
		_, err := e.Extract([]byte(html), "https://news.example.com/thin")
		if !errors.Is(err, utils.ErrMissingRequiredField) {
			t.Errorf("expected ErrMissingRequiredField below the word floor, got %v", err)
		}
	})

	t.Run("StructuredDataBelowFloorDoesNotFallBack", func(t *testing.T) {
		// The structured body claims the page; a thin body fails outright
		// instead of retrying weaker strategies against richer markup.
		html := `<html><head>
<script type="application/ld+json">
{"@type": "NewsArticle", "headline": "Thin", "articleBody": "Too short to keep."}
</script>
</head>
<body><article><h1>Rich Markup</h1>
<p>This much longer markup paragraph would clear the word floor if the fallback were allowed to run.</p>
</article></body></html>`

		e := testExtractor(Options{MinParagraphLength: 30, MinWordCount: 10})
		doc, err := e.Extract([]byte(html), "https://news.example.com/thin-jsonld")
		if doc != nil {
			t.Fatalf("expected no document, got method %q", doc.Method)
		}
		if !errors.Is(err, utils.ErrMissingRequiredField) {
			t.Errorf("expected ErrMissingRequiredField, got %v", err)
		}
	})
}

// --- Readability pass ---

func TestNew_ReadabilityGated(t *testing.T) {
	if got := len(testExtractor(Options{}).strategies); got != 2 {
		t.Errorf("default strategy chain length = %d, want 2", got)
	}
	if got := len(testExtractor(Options{EnableReadability: true}).strategies); got != 3 {
		t.Errorf("readability strategy chain length = %d, want 3", got)
	}
}

func TestExtract_ReadabilityRescuesDivOnlyPage(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Deep Dive</title></head>
<body>
<div id="content">
<div>Glacier monitoring teams spent the better part of the decade installing sensors along the ridge, hauling equipment up switchback trails, and calibrating instruments in weather that shifted from sleet to sun within the hour. Their records now span eleven seasons.</div>
<div>The data shows a steady thinning of the ice sheet, averaging nearly two meters per year, with the sharpest losses concentrated along the southern face where meltwater channels have carved deep, branching networks into the surface.</div>
<div>Researchers argue that the pattern, consistent across every site they measure, leaves little room for alternative explanations, and they expect the lower basin to lose its permanent snow cover within twenty years.</div>
</div>
</body>
</html>`

	disabled := testExtractor(Options{MinParagraphLength: 30})
	if _, err := disabled.Extract([]byte(html), "https://science.example.com/glacier"); err == nil {
		t.Fatal("expected extraction to fail without the readability pass")
	}

	e := testExtractor(Options{MinParagraphLength: 30, EnableReadability: true})
	doc, err := e.Extract([]byte(html), "https://science.example.com/glacier")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Method != models.MethodReadability {
		t.Errorf("Method = %q, want %q", doc.Method, models.MethodReadability)
	}
	if !strings.Contains(doc.BodyText, "thinning of the ice sheet") {
		t.Error("BodyText missing the div content")
	}
	if doc.Title != "Deep Dive" {
		t.Errorf("Title = %q, want the document title", doc.Title)
	}
	if doc.ContentHash != dedupe.Hash(doc.BodyText) {
		t.Error("ContentHash does not match the body fingerprint")
	}
}

// --- Helpers ---

func TestTypeMatches(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"NewsArticle", "NewsArticle", true},
		{"BlogPosting", "BlogPosting", true},
		{"SchemaOrgHTTPS", "https://schema.org/Article", true},
		{"SchemaOrgHTTP", "http://schema.org/NewsArticle", true},
		{"Product", "Product", false},
		{"EmptyString", "", false},
		{"ArrayWithMatch", []any{"WebPage", "NewsArticle"}, true},
		{"ArrayWithoutMatch", []any{"WebPage", "Product"}, false},
		{"ArrayNonStrings", []any{42, true}, false},
		{"Nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := typeMatches(tt.value); got != tt.want {
				t.Errorf("typeMatches(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestAuthorName(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"String", "Newsroom Staff", "Newsroom Staff"},
		{"PaddedString", "  Dana Reyes  ", "Dana Reyes"},
		{"Person", map[string]any{"@type": "Person", "name": "Ana Sol"}, "Ana Sol"},
		{"Organization", map[string]any{"@type": "Organization", "name": "Wire Desk"}, "Wire Desk"},
		{"MapWithoutName", map[string]any{"@type": "Person"}, ""},
		{"Array", []any{map[string]any{"name": "Ana Sol"}, "Ben Ortiz"}, "Ana Sol, Ben Ortiz"},
		{"ArrayWithJunk", []any{42, map[string]any{"name": "Ana Sol"}}, "Ana Sol"},
		{"Nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authorName(tt.value); got != tt.want {
				t.Errorf("authorName(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestParagraphsToHTML(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"TwoParagraphs", "First paragraph.\n\nSecond paragraph.", "<p>First paragraph.</p>\n<p>Second paragraph.</p>"},
		{"SingleParagraph", "Only one.", "<p>Only one.</p>"},
		{"EscapesMarkup", "5 > 3 & <script> is escaped", "<p>5 &gt; 3 &amp; &lt;script&gt; is escaped</p>"},
		{"SkipsBlankChunks", "First.\n\n\n\nSecond.", "<p>First.</p>\n<p>Second.</p>"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := paragraphsToHTML(tt.body); got != tt.want {
				t.Errorf("paragraphsToHTML(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
