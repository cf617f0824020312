package dedupe

import (
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/storage"
)

// BadgerSet persists fingerprints through the harvest state store so
// duplicate detection survives resumed runs.
type BadgerSet struct {
	store storage.FingerprintStore
}

// NewBadgerSet creates a fingerprint set backed by the given store
func NewBadgerSet(store storage.FingerprintStore) *BadgerSet {
	return &BadgerSet{store: store}
}

// Seen implements the Deduplicator interface
func (s *BadgerSet) Seen(hash string) (bool, error) {
	_, found, err := s.store.GetFingerprint(hash)
	return found, err
}

// Record implements the Deduplicator interface
func (s *BadgerSet) Record(fp models.ContentFingerprint) (bool, error) {
	return s.store.AddFingerprint(fp)
}

// FirstSeen implements the Deduplicator interface
func (s *BadgerSet) FirstSeen(hash string) (*models.ContentFingerprint, bool, error) {
	return s.store.GetFingerprint(hash)
}

// Close implements the Deduplicator interface. The store's lifecycle is
// owned by whoever opened it.
func (s *BadgerSet) Close() error {
	return nil
}
