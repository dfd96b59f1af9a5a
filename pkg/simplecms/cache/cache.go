// Package cache provides the explicit prefix cache used for site and host
// resolution. Entries expire after a TTL and can be dropped by key prefix.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL applies when New is given a non-positive TTL.
const DefaultTTL = 10 * time.Minute

// Cache is a TTL key/value store with prefix invalidation.
type Cache struct {
	store *gocache.Cache
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: gocache.New(ttl, 2*ttl)}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

func (c *Cache) Set(key string, value interface{}) {
	c.store.SetDefault(key, value)
}

func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// DeleteStartWith drops every entry whose key starts with prefix.
func (c *Cache) DeleteStartWith(prefix string) {
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Len is the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
