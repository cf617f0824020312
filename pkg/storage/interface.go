package storage

import (
	"context"
	"time"

	"github.com/sriram-pr/article-scraper/pkg/models"
)

// ArticleStore handles article URL visitation state
type ArticleStore interface {
	// MarkArticleVisited marks an article URL as visited (pending state)
	// Returns true if the URL was newly added, false if it already existed
	MarkArticleVisited(normalizedURL string) (bool, error)

	// CheckArticleStatus retrieves the status and details of an article URL
	// Returns status (ArticleStatusSuccess, ArticleStatusFailure, ArticleStatusPending,
	// ArticleStatusNotFound, ArticleStatusDBError), the ArticleDBEntry if found and parsed,
	// and any error
	CheckArticleStatus(normalizedURL string) (status models.ArticleStatus, entry *models.ArticleDBEntry, err error)

	// UpdateArticleStatus updates the status and details for an article URL
	UpdateArticleStatus(normalizedURL string, entry *models.ArticleDBEntry) error

	// GetArticleContentHash retrieves the content hash for a previously harvested article
	// Returns the hash string, whether it exists, and any error
	GetArticleContentHash(normalizedURL string) (hash string, exists bool, err error)
}

// FingerprintStore persists content fingerprints so duplicate detection
// survives restarts
type FingerprintStore interface {
	// AddFingerprint records a fingerprint if its hash is not already present.
	// Returns true if the fingerprint was newly added; recording an existing
	// hash is a no-op, not an error
	AddFingerprint(fp models.ContentFingerprint) (added bool, err error)

	// GetFingerprint retrieves a fingerprint by hash
	// Returns the fingerprint, whether it exists, and any error
	GetFingerprint(hash string) (*models.ContentFingerprint, bool, error)
}

// KVStore is a small TTL-aware key-value surface used by the response cache
type KVStore interface {
	// SetKV stores a value under key; ttl > 0 makes the entry expire natively
	SetKV(key string, value []byte, ttl time.Duration) error

	// GetKV retrieves a value; expired or absent keys report found=false
	GetKV(key string) (value []byte, found bool, err error)

	// DeleteKV removes a key; deleting an absent key is not an error
	DeleteKV(key string) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns an approximate count of article keys in the store
	GetVisitedCount() (int, error)

	// RequeueIncomplete scans the DB and sends incomplete items (failed, pending, empty) to the provided channel
	// Should be called only during resume
	RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (requeuedCount int, scanErrors int, err error)

	// WriteVisitedLog writes all article keys (URLs) to the specified file path
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// HarvestStore combines all store interfaces for components that need full access
type HarvestStore interface {
	ArticleStore
	FingerprintStore
	KVStore
	StoreAdmin
}
