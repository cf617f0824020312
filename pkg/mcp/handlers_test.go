package mcp

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriram-pr/article-scraper/pkg/cache"
	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/extract"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/pipeline"
	"github.com/sriram-pr/article-scraper/pkg/ratelimit"
)

const reservoirURL = "https://metro-daily.example/news/reservoir-levels-climb/"

const reservoirHTML = `<!DOCTYPE html>
<html><head><title>Reservoir Levels Climb</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "NewsArticle",
  "headline": "Reservoir Levels Climb After Wet Spring",
  "datePublished": "2024-04-12T08:30:00Z",
  "author": {"@type": "Person", "name": "Dana Whitfield"},
  "articleBody": "Water levels at the city reservoir reached ninety percent of capacity this week, the highest reading in six years. Utility managers credited a wet spring and said summer restrictions are unlikely if the trend holds. The watershed recorded fourteen inches of rain since March, roughly double the seasonal average."
}
</script>
</head>
<body><article><p>Reservoir at ninety percent.</p></article></body></html>`

// Same articleBody as reservoirHTML under a different headline and URL.
const reservoirMirrorURL = "https://metro-daily.example/region/reservoir-update/"

const reservoirMirrorHTML = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@type": "NewsArticle",
  "headline": "Reservoir Update: Capacity Nears Ninety Percent",
  "articleBody": "Water levels at the city reservoir reached ninety percent of capacity this week, the highest reading in six years. Utility managers credited a wet spring and said summer restrictions are unlikely if the trend holds. The watershed recorded fourteen inches of rain since March, roughly double the seasonal average."
}
</script>
</head>
<body></body></html>`

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]string // requested URL -> HTML body
	calls     []string
}

func (f *stubFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()

	body, ok := f.responses[req.URL]
	if !ok {
		return nil, fetch.NewHTTPError(http.StatusNotFound, "404 Not Found")
	}
	return &fetch.Result{
		StatusCode:   http.StatusOK,
		Body:         []byte(body),
		Headers:      http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		FinalURL:     req.URL,
		FetchedAt:    time.Now(),
		AttemptCount: 1,
	}, nil
}

func (f *stubFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestServer builds a Server over a stubbed fetcher, skipping the real
// HTTP client and transport that NewServer wires up.
func newTestServer(t *testing.T, appCfg *config.AppConfig, f fetch.Fetcher) *Server {
	t.Helper()
	logger := discardLogger()
	log := logrus.NewEntry(logger)

	limiters, err := ratelimit.NewDomainLimiter(1000, time.Minute, log)
	require.NoError(t, err)

	s := &Server{
		cfg:         &ServerConfig{AppConfig: appCfg, Logger: logger},
		log:         log,
		jobManager:  NewJobManager(),
		limiters:    limiters,
		fetcher:     f,
		adhocCache:  cache.New(appCfg, nil, log),
		adhocDedupe: dedupe.New(appCfg, nil, log),
	}
	extractor := extract.New(extract.OptionsFromConfig(config.SourceConfig{}, *appCfg), log)
	s.adhoc = pipeline.New(appCfg, f, limiters, s.adhocCache, s.adhocDedupe, extractor, logger)
	return s
}

func TestExtractSnippet(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		maxLen  int
		wantHas string // substring that must appear
		wantPfx string // expected prefix (if any)
		wantSfx string // expected suffix (if any)
	}{
		{
			name:    "match in middle with ellipsis",
			content: "The quick brown fox jumps over the lazy dog and then keeps running forever",
			query:   "jumps",
			maxLen:  20,
			wantHas: "jumps",
			wantPfx: "...",
			wantSfx: "...",
		},
		{
			name:    "match at start",
			content: "Hello world this is a test",
			query:   "Hello",
			maxLen:  20,
			wantHas: "Hello",
		},
		{
			name:    "match at end",
			content: "This is a very long string that ends with target",
			query:   "target",
			maxLen:  20,
			wantHas: "target",
		},
		{
			name:    "no match truncated beginning",
			content: "abcdefghijklmnopqrstuvwxyz",
			query:   "zzz",
			maxLen:  10,
			wantHas: "abcdefghij",
			wantSfx: "...",
		},
		{
			name:    "short content returned as-is",
			content: "hi",
			query:   "missing",
			maxLen:  100,
			wantHas: "hi",
		},
		{
			name:    "empty content",
			content: "",
			query:   "test",
			maxLen:  50,
			wantHas: "",
		},
		{
			name:    "case insensitive",
			content: "The Quick Brown Fox",
			query:   "quick",
			maxLen:  100,
			wantHas: "Quick",
		},
		{
			name:    "unicode safety",
			content: "こんにちは世界、テストです。Unicode文字列のテスト。",
			query:   "テスト",
			maxLen:  15,
			wantHas: "テスト",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSnippet(tt.content, tt.query, tt.maxLen)
			if tt.wantHas != "" {
				assert.Contains(t, got, tt.wantHas)
			}
			if tt.wantPfx != "" {
				assert.Contains(t, got, tt.wantPfx, "expected prefix ellipsis")
			}
			if tt.wantSfx != "" {
				assert.True(t, len(got) > 0 && got[len(got)-3:] == "...", "expected suffix ellipsis")
			}
		})
	}
}

func TestParseJSONLine(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		line := `{"url":"https://example.com","title":"Test","content":"Hello","headings":["H1"]}`
		var article models.ArticleJSONL
		err := parseJSONLine(line, &article)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", article.URL)
		assert.Equal(t, "Test", article.Title)
		assert.Equal(t, "Hello", article.Content)
		assert.Equal(t, []string{"H1"}, article.Headings)
	})

	t.Run("empty string", func(t *testing.T) {
		var article models.ArticleJSONL
		err := parseJSONLine("", &article)
		assert.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var article models.ArticleJSONL
		err := parseJSONLine("{not valid json}", &article)
		assert.Error(t, err)
	})

	t.Run("partial fields", func(t *testing.T) {
		line := `{"url":"https://example.com"}`
		var article models.ArticleJSONL
		err := parseJSONLine(line, &article)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", article.URL)
		assert.Empty(t, article.Title)
		assert.Empty(t, article.Content)
	})
}

func TestMatchArticle(t *testing.T) {
	article := &models.ArticleJSONL{
		Title:    "Bridge Reopens Ahead of Schedule",
		Content:  "The westbound span reopened to traffic two weeks early.",
		Headings: []string{"Construction Timeline", "Detour Routes"},
	}

	tests := []struct {
		name         string
		query        string // already lowercased, as searchJSONL passes it
		wantMatch    bool
		wantLocation string
	}{
		{"title match", "bridge reopens", true, "title"},
		{"content match", "westbound span", true, "content"},
		{"headings match", "detour routes", true, "headings"},
		{"title wins over content", "reopen", true, "title"},
		{"no match", "ferry timetable", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, location := matchArticle(article, tt.query)
			assert.Equal(t, tt.wantMatch, matched)
			assert.Equal(t, tt.wantLocation, location)
		})
	}
}

func TestJobSummary(t *testing.T) {
	t.Run("running job", func(t *testing.T) {
		job := &Job{
			ID:                "abc",
			SourceKey:         "metro_daily",
			Status:            JobStatusRunning,
			StartedAt:         time.Now(),
			ArticlesProcessed: 12,
			ArticlesQueued:    30,
		}

		got := jobSummary(job)
		assert.Equal(t, "abc", got["job_id"])
		assert.Equal(t, "metro_daily", got["source_key"])
		assert.Equal(t, JobStatusRunning, got["status"])
		assert.Equal(t, int64(12), got["articles_processed"])
		assert.Equal(t, int64(30), got["articles_queued"])

		_, hasCompleted := got["completed_at"]
		assert.False(t, hasCompleted)
		_, hasDuration := got["duration_seconds"]
		assert.False(t, hasDuration)
		_, hasError := got["error_message"]
		assert.False(t, hasError)
	})

	t.Run("finished job carries completion fields", func(t *testing.T) {
		start := time.Now().Add(-2 * time.Minute)
		job := &Job{
			ID:           "def",
			SourceKey:    "metro_daily",
			Status:       JobStatusFailed,
			StartedAt:    start,
			CompletedAt:  start.Add(time.Minute),
			ErrorMessage: "boom",
		}

		got := jobSummary(job)
		assert.Equal(t, JobStatusFailed, got["status"])
		assert.Equal(t, "boom", got["error_message"])
		assert.Equal(t, 60.0, got["duration_seconds"])
		assert.Equal(t, start.Add(time.Minute).Format(time.RFC3339), got["completed_at"])
	})
}

func TestExtractArticle(t *testing.T) {
	newAppConfig := func() *config.AppConfig {
		return &config.AppConfig{
			CacheEnabled: true,
			CacheTTL:     time.Hour,
			Sources: map[string]config.SourceConfig{
				"metro_daily": {AllowedDomain: "metro-daily.example"},
			},
		}
	}

	t.Run("extracts and converts an article", func(t *testing.T) {
		f := &stubFetcher{responses: map[string]string{reservoirURL: reservoirHTML}}
		s := newTestServer(t, newAppConfig(), f)

		result, err := s.extractArticle(context.Background(), reservoirURL, "")
		require.NoError(t, err)

		assert.Equal(t, reservoirURL, result["url"])
		assert.Equal(t, "Reservoir Levels Climb After Wet Spring", result["title"])
		assert.Equal(t, "Dana Whitfield", result["author"])
		assert.Equal(t, models.MethodStructuredData, result["method"])
		assert.Equal(t, http.StatusOK, result["status_code"])
		assert.Equal(t, false, result["from_cache"])
		assert.NotEmpty(t, result["content_hash"])
		assert.Equal(t, "2024-04-12T08:30:00Z", result["published_at"])

		content, _ := result["content"].(string)
		assert.Contains(t, content, "ninety percent of capacity")

		wordCount, _ := result["word_count"].(int)
		assert.Greater(t, wordCount, 20)

		_, hasNote := result["note"]
		assert.False(t, hasNote)
	})

	t.Run("second call replays from cache", func(t *testing.T) {
		f := &stubFetcher{responses: map[string]string{reservoirURL: reservoirHTML}}
		s := newTestServer(t, newAppConfig(), f)

		first, err := s.extractArticle(context.Background(), reservoirURL, "")
		require.NoError(t, err)
		assert.Equal(t, false, first["from_cache"])

		second, err := s.extractArticle(context.Background(), reservoirURL, "")
		require.NoError(t, err)
		assert.Equal(t, true, second["from_cache"])
		assert.Equal(t, first["content"], second["content"])
		assert.Equal(t, 1, f.fetchCount())
	})

	t.Run("source key applies source settings", func(t *testing.T) {
		f := &stubFetcher{responses: map[string]string{reservoirURL: reservoirHTML}}
		s := newTestServer(t, newAppConfig(), f)

		result, err := s.extractArticle(context.Background(), reservoirURL, "metro_daily")
		require.NoError(t, err)
		assert.Equal(t, "Reservoir Levels Climb After Wet Spring", result["title"])
	})

	t.Run("unknown source key", func(t *testing.T) {
		f := &stubFetcher{responses: map[string]string{}}
		s := newTestServer(t, newAppConfig(), f)

		_, err := s.extractArticle(context.Background(), reservoirURL, "city_ledger")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.Equal(t, 0, f.fetchCount())
	})

	t.Run("fetch failure propagates", func(t *testing.T) {
		f := &stubFetcher{responses: map[string]string{}}
		s := newTestServer(t, newAppConfig(), f)

		_, err := s.extractArticle(context.Background(), reservoirURL, "")
		require.Error(t, err)
	})

	t.Run("duplicate body returns the article with a note", func(t *testing.T) {
		f := &stubFetcher{responses: map[string]string{
			reservoirURL:       reservoirHTML,
			reservoirMirrorURL: reservoirMirrorHTML,
		}}
		s := newTestServer(t, newAppConfig(), f)

		_, err := s.extractArticle(context.Background(), reservoirURL, "")
		require.NoError(t, err)

		result, err := s.extractArticle(context.Background(), reservoirMirrorURL, "")
		require.NoError(t, err)

		note, _ := result["note"].(string)
		assert.Contains(t, note, reservoirURL)
		assert.Equal(t, "Reservoir Update: Capacity Nears Ninety Percent", result["title"])
		assert.NotEmpty(t, result["content"])
	})
}

func TestSearchJSONL(t *testing.T) {
	outDir := t.TempDir()
	appCfg := &config.AppConfig{OutputBaseDir: outDir}
	sources := map[string]config.SourceConfig{
		"harbor_gazette": {AllowedDomain: "harbor-gazette.example"},
		"metro_daily":    {AllowedDomain: "metro-daily.example"},
		"valley_courier": {AllowedDomain: "valley-courier.example"}, // never harvested
	}
	appCfg.Sources = sources
	s := &Server{cfg: &ServerConfig{AppConfig: appCfg}}

	writeJSONL := func(t *testing.T, domain string, lines ...string) {
		t.Helper()
		dir := filepath.Join(outDir, domain)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		content := strings.Join(lines, "\n") + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "articles.jsonl"), []byte(content), 0o644))
	}

	writeJSONL(t, "metro-daily.example",
		`{"url":"https://metro-daily.example/news/levee/","title":"Levee Inspection Finds No Storm Damage","content":"Crews walked the east levee at first light and logged no new cracks.","headings":["East Bank"],"published_at":"2024-05-02T07:00:00Z"}`,
		`{"url":"https://metro-daily.example/news/budget/","title":"Council Passes Budget","content":"The council passed the parks budget on a second reading.","headings":["Parks Vote"]}`,
		`not json at all`,
	)
	writeJSONL(t, "harbor-gazette.example",
		`{"url":"https://harbor-gazette.example/news/tide/","title":"King Tide Closes Boardwalk","content":"The boardwalk closed for the morning king tide."}`,
	)

	t.Run("title match", func(t *testing.T) {
		results := s.searchJSONL("levee inspection", sources, 10)
		require.Len(t, results, 1)
		assert.Equal(t, "https://metro-daily.example/news/levee/", results[0]["url"])
		assert.Equal(t, "title", results[0]["match_location"])
		assert.Equal(t, "metro_daily", results[0]["source_key"])
		assert.Equal(t, "2024-05-02T07:00:00Z", results[0]["published_at"])
	})

	t.Run("content match", func(t *testing.T) {
		results := s.searchJSONL("second reading", sources, 10)
		require.Len(t, results, 1)
		assert.Equal(t, "content", results[0]["match_location"])
		assert.Contains(t, results[0]["snippet"], "second reading")
	})

	t.Run("headings match", func(t *testing.T) {
		results := s.searchJSONL("east bank", sources, 10)
		require.Len(t, results, 1)
		assert.Equal(t, "headings", results[0]["match_location"])
	})

	t.Run("sources visited in key order", func(t *testing.T) {
		results := s.searchJSONL("the", sources, 10)
		require.Len(t, results, 3)
		assert.Equal(t, "harbor_gazette", results[0]["source_key"])
		assert.Equal(t, "metro_daily", results[1]["source_key"])
	})

	t.Run("max results cap", func(t *testing.T) {
		results := s.searchJSONL("the", sources, 2)
		require.Len(t, results, 2)
		assert.Equal(t, "harbor_gazette", results[0]["source_key"])
	})

	t.Run("no match", func(t *testing.T) {
		results := s.searchJSONL("zoning variance", sources, 10)
		assert.Empty(t, results)
	})

	t.Run("source without output skipped", func(t *testing.T) {
		only := map[string]config.SourceConfig{
			"valley_courier": {AllowedDomain: "valley-courier.example"},
		}
		results := s.searchJSONL("levee", only, 10)
		assert.Empty(t, results)
	})
}

func TestGetLastHarvestTime(t *testing.T) {
	outDir := t.TempDir()
	appCfg := &config.AppConfig{OutputBaseDir: outDir}
	s := &Server{cfg: &ServerConfig{AppConfig: appCfg}}
	sourceCfg := config.SourceConfig{AllowedDomain: "metro-daily.example"}

	t.Run("no metadata file", func(t *testing.T) {
		assert.True(t, s.getLastHarvestTime(sourceCfg).IsZero())
	})

	t.Run("reads harvest end time", func(t *testing.T) {
		dir := filepath.Join(outDir, "metro-daily.example")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		body := "source_key: metro_daily\nharvest_end_time: 2024-06-01T12:00:00Z\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.yaml"), []byte(body), 0o644))

		got := s.getLastHarvestTime(sourceCfg)
		require.False(t, got.IsZero())
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.June, got.Month())
	})

	t.Run("malformed metadata treated as absent", func(t *testing.T) {
		dir := filepath.Join(outDir, "metro-daily.example")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.yaml"), []byte(":\tnot yaml"), 0o644))
		assert.True(t, s.getLastHarvestTime(sourceCfg).IsZero())
	})
}
