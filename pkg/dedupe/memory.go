package dedupe

import (
	"sync"

	"github.com/sriram-pr/article-scraper/pkg/models"
)

// MemorySet is an in-process fingerprint set. LoadOrStore makes Record
// first-writer-wins without a separate lock.
type MemorySet struct {
	fingerprints sync.Map // hash -> *models.ContentFingerprint
}

// NewMemorySet creates an empty in-memory fingerprint set
func NewMemorySet() *MemorySet {
	return &MemorySet{}
}

// Seen implements the Deduplicator interface
func (s *MemorySet) Seen(hash string) (bool, error) {
	_, ok := s.fingerprints.Load(hash)
	return ok, nil
}

// Record implements the Deduplicator interface
func (s *MemorySet) Record(fp models.ContentFingerprint) (bool, error) {
	stored := fp
	_, loaded := s.fingerprints.LoadOrStore(fp.Hash, &stored)
	return !loaded, nil
}

// FirstSeen implements the Deduplicator interface
func (s *MemorySet) FirstSeen(hash string) (*models.ContentFingerprint, bool, error) {
	v, ok := s.fingerprints.Load(hash)
	if !ok {
		return nil, false, nil
	}
	return v.(*models.ContentFingerprint), true, nil
}

// Close implements the Deduplicator interface
func (s *MemorySet) Close() error {
	return nil
}
