package cache

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/storage"
)

// BadgerCache persists entries through the harvest state store's KV surface,
// using Badger's native TTL for expiry. Every backend or serialization
// failure is logged and treated as a miss.
type BadgerCache struct {
	kv  storage.KVStore
	log *logrus.Entry
}

// NewBadger creates a cache backed by the given KV store
func NewBadger(kv storage.KVStore, logger *logrus.Entry) *BadgerCache {
	return &BadgerCache{kv: kv, log: logger}
}

// Get implements the Cache interface
func (c *BadgerCache) Get(key string) (*Entry, bool) {
	val, found, err := c.kv.GetKV(key)
	if err != nil {
		c.log.WithField("key", key).Warnf("Cache read failed, treating as miss: %v", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		c.log.WithField("key", key).Warnf("Cache entry undecodable, treating as miss: %v", err)
		return nil, false
	}
	return &e, true
}

// Put implements the Cache interface
func (c *BadgerCache) Put(key string, e *Entry, ttl time.Duration) {
	if e == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		c.log.WithField("key", key).Warnf("Cache entry not serializable, skipping store: %v", err)
		return
	}
	if err := c.kv.SetKV(key, data, ttl); err != nil {
		c.log.WithField("key", key).Warnf("Cache write failed: %v", err)
	}
}

// Delete implements the Cache interface
func (c *BadgerCache) Delete(key string) {
	if err := c.kv.DeleteKV(key); err != nil {
		c.log.WithField("key", key).Warnf("Cache delete failed: %v", err)
	}
}

// Close implements the Cache interface. The underlying store's lifecycle is
// owned by whoever opened it, so there is nothing to release here.
func (c *BadgerCache) Close() error {
	return nil
}
