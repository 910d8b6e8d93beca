// Package cache provides caching utilities for the MCP server.
package cache

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a thread-safe, size-bounded cache keyed by string.
type LRU[V any] struct {
	cache *lru.Cache[string, V]
}

// New creates a new LRU cache with the specified maximum number of items.
func New[V any](maxItems int) (*LRU[V], error) {
	c, err := lru.New[string, V](maxItems)
	if err != nil {
		return nil, err
	}
	return &LRU[V]{cache: c}, nil
}

// Get retrieves a value by key.
func (c *LRU[V]) Get(key string) (V, bool) {
	return c.cache.Get(key)
}

// Put adds or updates a value.
func (c *LRU[V]) Put(key string, v V) {
	c.cache.Add(key, v)
}

// Remove drops a single key.
func (c *LRU[V]) Remove(key string) {
	c.cache.Remove(key)
}

// RemovePrefix drops every key starting with prefix and returns how many
// were removed.
func (c *LRU[V]) RemovePrefix(prefix string) int {
	n := 0
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
			n++
		}
	}
	return n
}

// Purge empties the cache.
func (c *LRU[V]) Purge() {
	c.cache.Purge()
}

// Len returns the current number of items in the cache.
func (c *LRU[V]) Len() int {
	return c.cache.Len()
}
