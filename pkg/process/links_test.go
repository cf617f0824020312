package process

import (
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/queue"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// fakeArticleStore tracks visited URLs in memory. failOn injects an error
// for a specific normalized URL.
type fakeArticleStore struct {
	visited map[string]bool
	failOn  map[string]error
}

func newFakeArticleStore() *fakeArticleStore {
	return &fakeArticleStore{
		visited: make(map[string]bool),
		failOn:  make(map[string]error),
	}
}

func (f *fakeArticleStore) MarkArticleVisited(normalizedURL string) (bool, error) {
	if err, ok := f.failOn[normalizedURL]; ok {
		return false, err
	}
	if f.visited[normalizedURL] {
		return false, nil
	}
	f.visited[normalizedURL] = true
	return true, nil
}

func (f *fakeArticleStore) CheckArticleStatus(normalizedURL string) (models.ArticleStatus, *models.ArticleDBEntry, error) {
	if f.visited[normalizedURL] {
		return models.ArticleStatusPending, &models.ArticleDBEntry{Status: models.ArticleStatusPending}, nil
	}
	return models.ArticleStatusNotFound, nil, nil
}

func (f *fakeArticleStore) UpdateArticleStatus(normalizedURL string, entry *models.ArticleDBEntry) error {
	f.visited[normalizedURL] = true
	return nil
}

func (f *fakeArticleStore) GetArticleContentHash(normalizedURL string) (string, bool, error) {
	return "", false, nil
}

// newLinksTestRig wires a LinkProcessor to a fake store and a real work
// queue, with logging discarded.
func newLinksTestRig(patterns []*regexp.Regexp) (*LinkProcessor, *fakeArticleStore, *queue.WorkQueue, *logrus.Entry) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := newFakeArticleStore()
	pq := queue.NewWorkQueue(logrus.NewEntry(logger))
	lp := NewLinkProcessor(store, pq, patterns, logger)
	return lp, store, pq, logrus.NewEntry(logger)
}

func mustParseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

// drainQueue pops n items, balancing the WaitGroup for each.
func drainQueue(t *testing.T, pq *queue.WorkQueue, wg *sync.WaitGroup, n int) map[string]int {
	t.Helper()
	items := make(map[string]int, n)
	for range n {
		item, ok := pq.Pop()
		require.True(t, ok, "queue closed before all queued items were popped")
		items[item.URL] = item.Depth
		wg.Done()
	}
	return items
}

func TestExtractAndQueueLinks_QueuesInScopeLinks(t *testing.T) {
	lp, store, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	// The listing page itself is already in the store, as it would be in a
	// real crawl; its self-referencing fragment link must not requeue it
	_, err := store.MarkArticleVisited("https://example.com/news")
	require.NoError(t, err)

	doc := mustParseDoc(t, `<html><body><main>
		<a href="/news/budget-vote/">Budget vote splits council</a>
		<a href="/news/water-main.html">Water main break closes Elm Street</a>
		<a href="https://example.com/news/transit-plan/">Transit plan approved</a>
		<a href="https://elsewhere.org/news/syndicated/">Syndicated copy</a>
		<a href="mailto:tips@example.com">Send a tip</a>
		<a href="tel:+15551234567">Call the desk</a>
		<a href="/opinion/editorial/">Editorial</a>
		<a href="#top">Back to top</a>
	</main></body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 0, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	assert.Equal(t, 3, pq.Len())

	items := drainQueue(t, pq, &wg, queued)
	wg.Wait() // Every wg.Add must be matched by a queued item

	expected := map[string]int{
		"https://example.com/news/budget-vote/":    1,
		"https://example.com/news/water-main.html": 1,
		"https://example.com/news/transit-plan/":   1,
	}
	assert.Equal(t, expected, items)

	// All three are now marked visited under their normalized form
	assert.True(t, store.visited["https://example.com/news/budget-vote"])
	assert.True(t, store.visited["https://example.com/news/water-main.html"])
	assert.True(t, store.visited["https://example.com/news/transit-plan"])
}

func TestExtractAndQueueLinks_DeduplicatesURLVariants(t *testing.T) {
	lp, _, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	// Four spellings of the same story: trailing slash, bare, campaign
	// parameters, fragment
	doc := mustParseDoc(t, `<html><body>
		<a href="/news/budget-vote/">From the front page</a>
		<a href="/news/budget-vote">From the sidebar</a>
		<a href="https://example.com/news/budget-vote/?utm_source=rss&utm_medium=feed">From the feed</a>
		<a href="/news/budget-vote/#comments">Join the discussion</a>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/older-story/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 1, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	item, ok := pq.Pop()
	require.True(t, ok)
	wg.Done()
	// The first spelling found is the one fetched
	assert.Equal(t, "https://example.com/news/budget-vote/", item.URL)
	assert.Equal(t, 2, item.Depth)
}

func TestExtractAndQueueLinks_SkipsAlreadyVisited(t *testing.T) {
	lp, store, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	_, err := store.MarkArticleVisited("https://example.com/news/budget-vote")
	require.NoError(t, err)

	doc := mustParseDoc(t, `<html><body>
		<a href="/news/budget-vote/">Already harvested</a>
		<a href="/news/transit-plan/">Not yet seen</a>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 0, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	item, ok := pq.Pop()
	require.True(t, ok)
	wg.Done()
	assert.Equal(t, "https://example.com/news/transit-plan/", item.URL)
}

func TestExtractAndQueueLinks_RespectsNofollow(t *testing.T) {
	lp, _, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	doc := mustParseDoc(t, `<html><body>
		<a href="/news/press-release/" rel="nofollow sponsored">Paid placement</a>
		<a href="/news/transit-plan/">Transit plan approved</a>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
		RespectNofollow:   true,
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 0, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	item, ok := pq.Pop()
	require.True(t, ok)
	wg.Done()
	assert.Equal(t, "https://example.com/news/transit-plan/", item.URL)
}

func TestExtractAndQueueLinks_MaxDepthStopsDiscovery(t *testing.T) {
	lp, store, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	doc := mustParseDoc(t, `<html><body>
		<a href="/news/deeper-story/">One level down</a>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
		MaxDepth:          2,
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 2, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, pq.Len())
	assert.Empty(t, store.visited, "links past max depth must not be marked visited")
}

func TestExtractAndQueueLinks_DisallowedPatterns(t *testing.T) {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`/tag/`),
		regexp.MustCompile(`/page/\d+`),
	}
	lp, _, pq, taskLog := newLinksTestRig(patterns)
	var wg sync.WaitGroup

	doc := mustParseDoc(t, `<html><body>
		<a href="/news/tag/transit/">All transit coverage</a>
		<a href="/news/page/2/">Older stories</a>
		<a href="/news/transit-plan/">Transit plan approved</a>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 0, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	item, ok := pq.Pop()
	require.True(t, ok)
	wg.Done()
	assert.Equal(t, "https://example.com/news/transit-plan/", item.URL)
}

func TestExtractAndQueueLinks_SelectorsRestrictDiscovery(t *testing.T) {
	lp, _, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	doc := mustParseDoc(t, `<html><body>
		<nav><a href="/news/section-front/">News</a></nav>
		<main class="story-list">
			<a href="/news/budget-vote/">Budget vote splits council</a>
			<a href="/news/transit-plan/">Transit plan approved</a>
		</main>
		<footer><a href="/news/archive/">Archive</a></footer>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:           "example.com",
		AllowedPathPrefix:       "/news/",
		LinkExtractionSelectors: []string{"main.story-list"},
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 0, sourceCfg, &wg, taskLog)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	items := drainQueue(t, pq, &wg, queued)
	assert.Contains(t, items, "https://example.com/news/budget-vote/")
	assert.Contains(t, items, "https://example.com/news/transit-plan/")
	assert.NotContains(t, items, "https://example.com/news/archive/")
}

func TestExtractAndQueueLinks_DBErrorIsNonFatal(t *testing.T) {
	lp, store, pq, taskLog := newLinksTestRig(nil)
	var wg sync.WaitGroup

	store.failOn["https://example.com/news/bad-story"] = errors.New("simulated corruption")

	doc := mustParseDoc(t, `<html><body>
		<a href="/news/bad-story/">Store failure</a>
		<a href="/news/good-story/">Store success</a>
	</body></html>`)

	finalURL, _ := url.Parse("https://example.com/news/")
	sourceCfg := config.SourceConfig{
		AllowedDomain:     "example.com",
		AllowedPathPrefix: "/news/",
	}

	queued, err := lp.ExtractAndQueueLinks(doc, finalURL, 0, sourceCfg, &wg, taskLog)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrDatabase)
	// The healthy link still went through
	assert.Equal(t, 1, queued)

	item, ok := pq.Pop()
	require.True(t, ok)
	wg.Done()
	assert.Equal(t, "https://example.com/news/good-story/", item.URL)
}
