package detect

import (
	"sync"
)

// SelectorCache holds detection results per domain so a host's markup is
// probed once per harvest, not once per page.
type SelectorCache struct {
	mu    sync.RWMutex
	cache map[string]DetectionResult
}

// NewSelectorCache creates an empty selector cache.
func NewSelectorCache() *SelectorCache {
	return &SelectorCache{
		cache: make(map[string]DetectionResult),
	}
}

// Get retrieves a cached detection result for a domain.
func (c *SelectorCache) Get(domain string) (DetectionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.cache[domain]
	return result, ok
}

// Set stores a detection result for a domain.
func (c *SelectorCache) Set(domain string, result DetectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[domain] = result
}

// Snapshot returns a copy of all cached results keyed by domain.
func (c *SelectorCache) Snapshot() map[string]DetectionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]DetectionResult, len(c.cache))
	for domain, result := range c.cache {
		out[domain] = result
	}
	return out
}

// Clear removes all cached entries.
func (c *SelectorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]DetectionResult)
}

// Size returns the number of cached entries.
func (c *SelectorCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
