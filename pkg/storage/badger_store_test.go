package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewBadgerStore(ctx, dir, "news.example.com", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("resume preserves data", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		// Create store and add data
		store1, err := NewBadgerStore(ctx, dir, "news.example.com", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkArticleVisited("https://news.example.com/story1")
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		// Reopen with resume=true
		store2, err := NewBadgerStore(ctx, dir, "news.example.com", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("fresh start wipes data", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		// Create store and add data
		store1, err := NewBadgerStore(ctx, dir, "news.example.com", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkArticleVisited("https://news.example.com/story1")
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		// Reopen with resume=false
		store2, err := NewBadgerStore(ctx, dir, "news.example.com", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("resume count ignores fingerprints and cache keys", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		store1, err := NewBadgerStore(ctx, dir, "news.example.com", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkArticleVisited("https://news.example.com/story1")
		require.NoError(t, err)
		_, err = store1.AddFingerprint(models.ContentFingerprint{Hash: "aaa"})
		require.NoError(t, err)
		require.NoError(t, store1.SetKV("https://news.example.com/story1", []byte("cached"), 0))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(ctx, dir, "news.example.com", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestMarkArticleVisited(t *testing.T) {
	store := newTestStore(t)

	t.Run("new URL returns true", func(t *testing.T) {
		added, err := store.MarkArticleVisited("https://news.example.com/story1")
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("duplicate returns false", func(t *testing.T) {
		added, err := store.MarkArticleVisited("https://news.example.com/story1")
		require.NoError(t, err)
		assert.False(t, added)
	})

	t.Run("count tracks correctly", func(t *testing.T) {
		_, err := store.MarkArticleVisited("https://news.example.com/story2")
		require.NoError(t, err)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestCheckArticleStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		status, entry, err := store.CheckArticleStatus("https://news.example.com/missing")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("pending with empty value", func(t *testing.T) {
		_, err := store.MarkArticleVisited("https://news.example.com/pending")
		require.NoError(t, err)

		status, entry, err := store.CheckArticleStatus("https://news.example.com/pending")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusPending, status)
		assert.Nil(t, entry)
	})

	t.Run("success entry", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		dbEntry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			ProcessedAt: now,
			LastAttempt: now,
			Depth:       2,
			ContentHash: "abc123",
			Method:      models.MethodStructuredData,
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/success", dbEntry))

		status, entry, err := store.CheckArticleStatus("https://news.example.com/success")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusSuccess, status)
		require.NotNil(t, entry)
		assert.Equal(t, "abc123", entry.ContentHash)
		assert.Equal(t, models.MethodStructuredData, entry.Method)
	})

	t.Run("failure entry", func(t *testing.T) {
		dbEntry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusFailure,
			ErrorType:   "Network_Timeout",
			LastAttempt: time.Now(),
			Depth:       1,
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/failed", dbEntry))

		status, entry, err := store.CheckArticleStatus("https://news.example.com/failed")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusFailure, status)
		require.NotNil(t, entry)
		assert.Equal(t, "Network_Timeout", entry.ErrorType)
	})

	t.Run("skipped duplicate entry", func(t *testing.T) {
		dbEntry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusSkipped,
			ErrorType:   "Content_Duplicate",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/dupe", dbEntry))

		status, _, err := store.CheckArticleStatus("https://news.example.com/dupe")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusSkipped, status)
	})

	t.Run("corrupted JSON falls back to pending", func(t *testing.T) {
		// Write raw invalid JSON bytes directly
		key := []byte(articleKeyPrefix + "https://news.example.com/corrupt")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte("{invalid json")))
		})
		require.NoError(t, err)

		status, entry, err := store.CheckArticleStatus("https://news.example.com/corrupt")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusPending, status)
		assert.Nil(t, entry)
	})
}

func TestUpdateArticleStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("new entry", func(t *testing.T) {
		entry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			LastAttempt: time.Now(),
			Depth:       0,
		}
		err := store.UpdateArticleStatus("https://news.example.com/new", entry)
		require.NoError(t, err)

		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)
	})

	t.Run("overwrite existing", func(t *testing.T) {
		entry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusFailure,
			ErrorType:   "HTTP_5xx",
			LastAttempt: time.Now(),
			Depth:       0,
		}
		err := store.UpdateArticleStatus("https://news.example.com/new", entry)
		require.NoError(t, err)

		// Count should not increase on overwrite
		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)

		// Verify updated value
		status, got, err := store.CheckArticleStatus("https://news.example.com/new")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusFailure, status)
		assert.Equal(t, "HTTP_5xx", got.ErrorType)
	})

	t.Run("full round-trip all fields survive", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		entry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			ErrorType:   "",
			ProcessedAt: now,
			LastAttempt: now,
			Depth:       5,
			ContentHash: "sha256:deadbeef",
			Method:      models.MethodHTMLFallback,
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/roundtrip", entry))

		_, got, err := store.CheckArticleStatus("https://news.example.com/roundtrip")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.ArticleStatusSuccess, got.Status)
		assert.Equal(t, now.UTC(), got.ProcessedAt.UTC())
		assert.Equal(t, now.UTC(), got.LastAttempt.UTC())
		assert.Equal(t, 5, got.Depth)
		assert.Equal(t, "sha256:deadbeef", got.ContentHash)
		assert.Equal(t, models.MethodHTMLFallback, got.Method)
	})
}

func TestGetArticleContentHash(t *testing.T) {
	store := newTestStore(t)

	t.Run("success with hash", func(t *testing.T) {
		entry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			ContentHash: "hash123",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/hashed", entry))

		hash, exists, err := store.GetArticleContentHash("https://news.example.com/hashed")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, "hash123", hash)
	})

	t.Run("success without hash", func(t *testing.T) {
		entry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			ContentHash: "",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/nohash", entry))

		hash, exists, err := store.GetArticleContentHash("https://news.example.com/nohash")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Empty(t, hash)
	})

	t.Run("failure status", func(t *testing.T) {
		entry := &models.ArticleDBEntry{
			Status:      models.ArticleStatusFailure,
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateArticleStatus("https://news.example.com/fail", entry))

		hash, exists, err := store.GetArticleContentHash("https://news.example.com/fail")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Empty(t, hash)
	})

	t.Run("not found", func(t *testing.T) {
		hash, exists, err := store.GetArticleContentHash("https://news.example.com/nope")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Empty(t, hash)
	})
}

func TestAddFingerprint(t *testing.T) {
	store := newTestStore(t)

	t.Run("new fingerprint returns true", func(t *testing.T) {
		fp := models.ContentFingerprint{
			Hash:         "aabbcc",
			FirstSeenURL: "https://news.example.com/story1",
			FirstSeenAt:  time.Now(),
		}
		added, err := store.AddFingerprint(fp)
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("recording same hash again is a no-op", func(t *testing.T) {
		fp := models.ContentFingerprint{
			Hash:         "aabbcc",
			FirstSeenURL: "https://news.example.com/mirror-of-story1",
			FirstSeenAt:  time.Now(),
		}
		added, err := store.AddFingerprint(fp)
		require.NoError(t, err)
		assert.False(t, added)

		// First writer's metadata must survive
		got, found, err := store.GetFingerprint("aabbcc")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "https://news.example.com/story1", got.FirstSeenURL)
	})

	t.Run("fingerprints do not affect visited count", func(t *testing.T) {
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestGetFingerprint(t *testing.T) {
	store := newTestStore(t)

	t.Run("absent hash", func(t *testing.T) {
		fp, found, err := store.GetFingerprint("nothere")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, fp)
	})

	t.Run("round-trip", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		in := models.ContentFingerprint{
			Hash:         "ddeeff",
			FirstSeenURL: "https://news.example.com/original",
			FirstSeenAt:  now,
		}
		_, err := store.AddFingerprint(in)
		require.NoError(t, err)

		got, found, err := store.GetFingerprint("ddeeff")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, in.Hash, got.Hash)
		assert.Equal(t, in.FirstSeenURL, got.FirstSeenURL)
		assert.Equal(t, now.UTC(), got.FirstSeenAt.UTC())
	})
}

func TestKVStore(t *testing.T) {
	store := newTestStore(t)

	t.Run("get absent key", func(t *testing.T) {
		val, found, err := store.GetKV("https://news.example.com/not-cached")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.SetKV("https://news.example.com/cached", []byte("payload"), 0))

		val, found, err := store.GetKV("https://news.example.com/cached")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("payload"), val)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.SetKV("https://news.example.com/cached", []byte("newer"), 0))

		val, found, err := store.GetKV("https://news.example.com/cached")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("newer"), val)
	})

	t.Run("ttl expiry surfaces as absent", func(t *testing.T) {
		require.NoError(t, store.SetKV("https://news.example.com/short-lived", []byte("x"), 50*time.Millisecond))

		time.Sleep(150 * time.Millisecond)

		_, found, err := store.GetKV("https://news.example.com/short-lived")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.SetKV("https://news.example.com/doomed", []byte("x"), 0))
		require.NoError(t, store.DeleteKV("https://news.example.com/doomed"))

		_, found, err := store.GetKV("https://news.example.com/doomed")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete absent key is not an error", func(t *testing.T) {
		assert.NoError(t, store.DeleteKV("https://news.example.com/never-existed"))
	})

	t.Run("cache keys do not affect visited count", func(t *testing.T) {
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestGetVisitedCount(t *testing.T) {
	store := newTestStore(t)

	t.Run("empty", func(t *testing.T) {
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("after article marks", func(t *testing.T) {
		store.MarkArticleVisited("https://news.example.com/1")
		store.MarkArticleVisited("https://news.example.com/2")
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("duplicates not double-counted", func(t *testing.T) {
		store.MarkArticleVisited("https://news.example.com/1") // duplicate
		store.UpdateArticleStatus("https://news.example.com/2", &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			LastAttempt: time.Now(),
		}) // overwrite
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestRequeueIncomplete(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		ch := make(chan models.WorkItem, 10)
		requeued, scanErrors, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 0, requeued)
		assert.Equal(t, 0, scanErrors)
		assert.Empty(t, ch)
	})

	t.Run("all success nothing requeued", func(t *testing.T) {
		store := newTestStore(t)
		store.UpdateArticleStatus("https://news.example.com/ok", &models.ArticleDBEntry{
			Status:      models.ArticleStatusSuccess,
			LastAttempt: time.Now(),
		})
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 0, requeued)
		assert.Empty(t, ch)
	})

	t.Run("skipped duplicates not requeued", func(t *testing.T) {
		store := newTestStore(t)
		store.UpdateArticleStatus("https://news.example.com/dupe", &models.ArticleDBEntry{
			Status:      models.ArticleStatusSkipped,
			LastAttempt: time.Now(),
		})
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 0, requeued)
		assert.Empty(t, ch)
	})

	t.Run("pending articles requeued", func(t *testing.T) {
		store := newTestStore(t)
		// Mark article (creates empty value = pending)
		store.MarkArticleVisited("https://news.example.com/pending1")
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 1, requeued)
		item := <-ch
		assert.Equal(t, "https://news.example.com/pending1", item.URL)
		assert.Equal(t, 0, item.Depth)
	})

	t.Run("failed articles requeued with correct depth", func(t *testing.T) {
		store := newTestStore(t)
		store.UpdateArticleStatus("https://news.example.com/fail", &models.ArticleDBEntry{
			Status:      models.ArticleStatusFailure,
			Depth:       3,
			LastAttempt: time.Now(),
		})
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 1, requeued)
		item := <-ch
		assert.Equal(t, "https://news.example.com/fail", item.URL)
		assert.Equal(t, 3, item.Depth)
	})

	t.Run("fingerprints and cache keys skipped", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.AddFingerprint(models.ContentFingerprint{Hash: "zzz"})
		require.NoError(t, err)
		require.NoError(t, store.SetKV("https://news.example.com/cached", []byte("x"), 0))

		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 0, requeued)
		assert.Empty(t, ch)
	})

	t.Run("context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		store.MarkArticleVisited("https://news.example.com/p1")
		store.MarkArticleVisited("https://news.example.com/p2")

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // cancel immediately

		ch := make(chan models.WorkItem, 10)
		_, _, err := store.RequeueIncomplete(ctx, ch)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWriteVisitedLog(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		outPath := filepath.Join(t.TempDir(), "visited.log")
		err := store.WriteVisitedLog(outPath)
		require.NoError(t, err)

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Empty(t, string(data))
	})

	t.Run("articles written without prefix", func(t *testing.T) {
		store := newTestStore(t)
		store.MarkArticleVisited("https://news.example.com/story1")
		store.MarkArticleVisited("https://news.example.com/story2")

		outPath := filepath.Join(t.TempDir(), "visited.log")
		err := store.WriteVisitedLog(outPath)
		require.NoError(t, err)

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "https://news.example.com/story1")
		assert.Contains(t, content, "https://news.example.com/story2")
		// Prefix should be stripped
		assert.NotContains(t, content, "article:")
	})

	t.Run("fingerprints and cache keys excluded", func(t *testing.T) {
		store := newTestStore(t)
		store.MarkArticleVisited("https://news.example.com/story1")
		store.AddFingerprint(models.ContentFingerprint{Hash: "fingerprint-hash"})
		store.SetKV("cache-key-url", []byte("x"), 0)

		outPath := filepath.Join(t.TempDir(), "visited.log")
		err := store.WriteVisitedLog(outPath)
		require.NoError(t, err)

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "https://news.example.com/story1")
		assert.NotContains(t, content, "fingerprint-hash")
		assert.NotContains(t, content, "cache-key-url")
	})

	t.Run("invalid path returns error", func(t *testing.T) {
		store := newTestStore(t)
		err := store.WriteVisitedLog("/nonexistent/dir/file.log")
		assert.Error(t, err)
	})
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // cancel immediately

		// Should return without panicking
		done := make(chan struct{})
		go func() {
			store.RunGC(ctx, 50*time.Millisecond)
			close(done)
		}()

		select {
		case <-done:
			// success
		case <-time.After(2 * time.Second):
			t.Fatal("RunGC did not respect context cancellation")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("normal close", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewBadgerStore(context.Background(), dir, "news.example.com", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("double close does not panic", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewBadgerStore(context.Background(), dir, "news.example.com", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close()) // second close should be safe
	})
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.Error(t, err)
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
