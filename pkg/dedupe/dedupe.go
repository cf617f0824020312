// Package dedupe detects articles whose body text already arrived through a
// different URL. Identity is a SHA-256 fingerprint of the normalized body, so
// trivial formatting differences between mirrors collapse to one document.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/storage"
)

// Normalize lowercases text and collapses every whitespace run to a single
// space, trimming the ends. Two bodies that normalize equal are considered
// the same article.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Hash returns the SHA-256 hex fingerprint of the normalized text
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Fingerprint builds a ContentFingerprint for text. The caller fills in
// first-seen metadata before recording.
func Fingerprint(text string) models.ContentFingerprint {
	return models.ContentFingerprint{Hash: Hash(text)}
}

// Deduplicator tracks which content fingerprints have been recorded.
// Implementations must be safe for concurrent use.
type Deduplicator interface {
	// Seen reports whether hash has already been recorded
	Seen(hash string) (bool, error)

	// Record stores fp if its hash is new. Returns true when fp was newly
	// added; recording an existing hash is a no-op, not an error, and the
	// first writer's metadata is kept.
	Record(fp models.ContentFingerprint) (added bool, err error)

	// FirstSeen returns the stored fingerprint for hash, if any
	FirstSeen(hash string) (*models.ContentFingerprint, bool, error)

	// Close releases backend resources
	Close() error
}

// New selects a deduplicator from config. Persistence requires a state store;
// without one the set lives in memory for the life of the process.
func New(cfg *config.AppConfig, store storage.FingerprintStore, logger *logrus.Entry) Deduplicator {
	if cfg.DedupePersist {
		if store == nil {
			logger.Warn("dedupe_persist is enabled without a state store, fingerprints will not survive restarts")
			return NewMemorySet()
		}
		return NewBadgerSet(store)
	}
	return NewMemorySet()
}
