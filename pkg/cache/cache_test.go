package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/storage"
)

func newBadgerKV(t *testing.T) *storage.BadgerStore {
	t.Helper()
	store, err := storage.NewBadgerStore(context.Background(), t.TempDir(), "news.example.com", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew_BackendSelection(t *testing.T) {
	t.Run("disabled returns noop", func(t *testing.T) {
		cfg := &config.AppConfig{CacheEnabled: false, CacheBackend: BackendMemory}
		c := New(cfg, nil, testLogger())
		assert.IsType(t, &NoopCache{}, c)
	})

	t.Run("backend none returns noop", func(t *testing.T) {
		cfg := &config.AppConfig{CacheEnabled: true, CacheBackend: BackendNone}
		c := New(cfg, nil, testLogger())
		assert.IsType(t, &NoopCache{}, c)
	})

	t.Run("backend memory", func(t *testing.T) {
		cfg := &config.AppConfig{CacheEnabled: true, CacheBackend: BackendMemory, CacheMaxEntries: 10}
		c := New(cfg, nil, testLogger())
		assert.IsType(t, &MemoryCache{}, c)
	})

	t.Run("backend badger with store", func(t *testing.T) {
		cfg := &config.AppConfig{CacheEnabled: true, CacheBackend: BackendBadger}
		c := New(cfg, newBadgerKV(t), testLogger())
		assert.IsType(t, &BadgerCache{}, c)
	})

	t.Run("backend badger without store falls back to memory", func(t *testing.T) {
		cfg := &config.AppConfig{CacheEnabled: true, CacheBackend: BackendBadger}
		c := New(cfg, nil, testLogger())
		assert.IsType(t, &MemoryCache{}, c)
	})
}

func TestNoopCache(t *testing.T) {
	c := NewNoop()

	c.Put("key", makeEntry(200, "x"), time.Minute)
	entry, ok := c.Get("key")
	assert.False(t, ok)
	assert.Nil(t, entry)

	c.Delete("key")
	assert.NoError(t, c.Close())
}

func TestBadgerCache_RoundTrip(t *testing.T) {
	c := NewBadger(newBadgerKV(t), testLogger())

	in := makeEntry(200, "<html>article</html>")
	in.FinalURL = "https://news.example.com/story"
	in.Headers = map[string][]string{"Content-Type": {"text/html"}}
	in.Document = &models.Document{
		URL:       "https://news.example.com/story",
		Title:     "Quarterly Results",
		BodyText:  "Profits rose sharply.",
		WordCount: 3,
		Method:    models.MethodStructuredData,
	}

	c.Put("https://news.example.com/story", in, 0)

	got, ok := c.Get("https://news.example.com/story")
	require.True(t, ok)
	assert.Equal(t, in.StatusCode, got.StatusCode)
	assert.Equal(t, in.Body, got.Body)
	assert.Equal(t, in.FinalURL, got.FinalURL)
	assert.Equal(t, in.Headers, got.Headers)
	assert.True(t, in.FetchedAt.Equal(got.FetchedAt))
	require.NotNil(t, got.Document)
	assert.Equal(t, "Quarterly Results", got.Document.Title)
	assert.Equal(t, models.MethodStructuredData, got.Document.Method)
}

func TestBadgerCache_MissOnAbsentKey(t *testing.T) {
	c := NewBadger(newBadgerKV(t), testLogger())
	entry, ok := c.Get("https://news.example.com/never-fetched")
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestBadgerCache_TTLExpiry(t *testing.T) {
	c := NewBadger(newBadgerKV(t), testLogger())
	c.Put("short", makeEntry(200, "x"), 50*time.Millisecond)

	time.Sleep(150 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestBadgerCache_Delete(t *testing.T) {
	c := NewBadger(newBadgerKV(t), testLogger())
	c.Put("doomed", makeEntry(200, "x"), 0)
	c.Delete("doomed")

	_, ok := c.Get("doomed")
	assert.False(t, ok)
}

func TestBadgerCache_CorruptEntryIsMiss(t *testing.T) {
	kv := newBadgerKV(t)
	c := NewBadger(kv, testLogger())

	require.NoError(t, kv.SetKV("corrupt", []byte("{not json"), 0))

	entry, ok := c.Get("corrupt")
	assert.False(t, ok)
	assert.Nil(t, entry)
}

// failingKV simulates a broken backend; the cache must degrade to misses.
type failingKV struct{}

func (failingKV) SetKV(string, []byte, time.Duration) error { return errors.New("disk full") }
func (failingKV) GetKV(string) ([]byte, bool, error)        { return nil, false, errors.New("disk full") }
func (failingKV) DeleteKV(string) error                     { return errors.New("disk full") }

func TestBadgerCache_BackendFailureDegradesToMiss(t *testing.T) {
	c := NewBadger(failingKV{}, testLogger())

	// Writes must not panic or propagate the error
	c.Put("key", makeEntry(200, "x"), time.Minute)

	entry, ok := c.Get("key")
	assert.False(t, ok)
	assert.Nil(t, entry)

	c.Delete("key")
	assert.NoError(t, c.Close())
}
