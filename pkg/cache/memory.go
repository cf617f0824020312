package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryEntry is the LRU list payload.
type memoryEntry struct {
	key       string
	entry     *Entry
	expiresAt time.Time // Zero value means no expiry
}

// MemoryCache is a mutex-guarded LRU cache. maxEntries 0 means unbounded.
// Expiry is lazy: expired entries are dropped when looked up.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List // Front = most recently used
	maxEntries int
	log        *logrus.Entry
}

// NewMemory creates an in-memory cache holding at most maxEntries entries
func NewMemory(maxEntries int, logger *logrus.Entry) *MemoryCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &MemoryCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		log:        logger,
	}
}

// Get implements the Cache interface
func (c *MemoryCache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	me := elem.Value.(*memoryEntry)
	if !me.expiresAt.IsZero() && time.Now().After(me.expiresAt) {
		c.removeElement(elem)
		c.log.WithField("key", key).Debug("Cache entry expired")
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return me.entry, true
}

// Put implements the Cache interface
func (c *MemoryCache) Put(key string, e *Entry, ttl time.Duration) {
	if e == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := c.entries[key]; ok {
		me := elem.Value.(*memoryEntry)
		me.entry = e
		me.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&memoryEntry{key: key, entry: e, expiresAt: expiresAt})
	c.entries[key] = elem

	if c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		c.evictOldest()
	}
}

// Delete implements the Cache interface
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries currently held, including any that have
// expired but not yet been looked up.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close implements the Cache interface
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	return nil
}

// evictOldest drops the least-recently-used entry. Caller must hold mu.
func (c *MemoryCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	me := elem.Value.(*memoryEntry)
	c.removeElement(elem)
	c.log.WithField("key", me.key).Debug("Evicted least-recently-used cache entry")
}

// removeElement unlinks an element from both the list and the map. Caller
// must hold mu.
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	me := elem.Value.(*memoryEntry)
	delete(c.entries, me.key)
}
