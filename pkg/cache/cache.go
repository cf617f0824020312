// Package cache provides best-effort response caching for the article
// pipeline. A hit replays a previous fetch without touching the network; any
// backend failure degrades to a miss so caching never breaks a harvest.
package cache

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/storage"
)

// Supported cache backends (cache_backend config key).
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Entry is a snapshot of a completed fetch, plus the extracted document when
// extraction succeeded. Replaying an Entry must be indistinguishable from the
// original fetch apart from the from-cache annotation.
type Entry struct {
	StatusCode int                 `json:"status_code"`
	Body       []byte              `json:"body,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
	FinalURL   string              `json:"final_url,omitempty"`
	FetchedAt  time.Time           `json:"fetched_at"`
	Document   *models.Document    `json:"document,omitempty"`
}

// Cache stores fetch snapshots under normalized-URL keys. Implementations
// must be safe for concurrent use. Put and Delete are fire-and-forget: they
// log failures instead of returning them.
type Cache interface {
	// Get returns the entry for key, or false on miss. Expired entries
	// count as misses.
	Get(key string) (*Entry, bool)

	// Put stores an entry; ttl > 0 bounds its lifetime, ttl == 0 keeps it
	// until evicted.
	Put(key string, e *Entry, ttl time.Duration)

	// Delete removes an entry; deleting an absent key is a no-op.
	Delete(key string)

	// Close releases backend resources.
	Close() error
}

// New selects a cache implementation from config. The badger backend rides
// the harvest state store's KV surface; when no store is available it falls
// back to the in-memory cache rather than failing.
func New(cfg *config.AppConfig, kv storage.KVStore, logger *logrus.Entry) Cache {
	if !cfg.CacheEnabled {
		return NewNoop()
	}
	switch cfg.CacheBackend {
	case BackendNone:
		return NewNoop()
	case BackendBadger:
		if kv == nil {
			logger.Warn("Cache backend 'badger' requested without a state store, using in-memory cache")
			return NewMemory(cfg.CacheMaxEntries, logger)
		}
		return NewBadger(kv, logger)
	default:
		return NewMemory(cfg.CacheMaxEntries, logger)
	}
}
