// Package hintcache memoizes selector hints per page URL.
package hintcache

import (
	"strings"
	"sync"

	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

// Cache stores ranked selector hints keyed by URL. Implementations must be
// safe for concurrent use and must never hand out shared hint data.
type Cache interface {
	Get(url string) ([]protocol.SelectorHint, bool)
	// Put replaces the entry for url. Empty lists are not stored.
	Put(url string, hints []protocol.SelectorHint)
	Invalidate(url string)
	Clear()
}

// Key returns the cache key for url.
func Key(url string) string {
	return strings.TrimSpace(url)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	entries sync.Map
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns a deep copy of the hints stored for url.
func (c *MemoryCache) Get(url string) ([]protocol.SelectorHint, bool) {
	key := Key(url)
	if key == "" {
		return nil, false
	}
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return protocol.CloneHints(v.([]protocol.SelectorHint)), true
}

// Put stores a deep copy of hints for url.
func (c *MemoryCache) Put(url string, hints []protocol.SelectorHint) {
	key := Key(url)
	if key == "" || len(hints) == 0 {
		return
	}
	c.entries.Store(key, protocol.CloneHints(hints))
}

func (c *MemoryCache) Invalidate(url string) {
	c.entries.Delete(Key(url))
}

func (c *MemoryCache) Clear() {
	c.entries.Range(func(k, _ interface{}) bool {
		c.entries.Delete(k)
		return true
	})
}

// Len returns the number of cached URLs.
func (c *MemoryCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
