package cache

import "time"

// NoopCache is the disabled-cache implementation: every Get is a miss and
// writes vanish.
type NoopCache struct{}

// NewNoop returns the no-op cache
func NewNoop() *NoopCache {
	return &NoopCache{}
}

// Get implements the Cache interface
func (c *NoopCache) Get(string) (*Entry, bool) { return nil, false }

// Put implements the Cache interface
func (c *NoopCache) Put(string, *Entry, time.Duration) {}

// Delete implements the Cache interface
func (c *NoopCache) Delete(string) {}

// Close implements the Cache interface
func (c *NoopCache) Close() error { return nil }
