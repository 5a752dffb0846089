package storage

import (
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/annotar/anno"
)

// ChunkCache holds decoded chunk data keyed by chunk key.  A nil *ChunkCache is valid
// and caches nothing.  Note that freecache only accepts entries smaller than 1/1024 of
// its total size, so small caches silently skip large chunks.
type ChunkCache struct {
	cache    *freecache.Cache
	attempts uint64
	hits     uint64
}

// NewChunkCache returns a cache of roughly numBytes, or nil if numBytes <= 0.
func NewChunkCache(numBytes int) *ChunkCache {
	if numBytes <= 0 {
		return nil
	}
	anno.Debugf("Created chunk cache of ~ %s\n", humanize.Bytes(uint64(numBytes)))
	return &ChunkCache{cache: freecache.NewCache(numBytes)}
}

// Get returns the cached value for key.
func (c *ChunkCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	atomic.AddUint64(&c.attempts, 1)
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		if err != freecache.ErrNotFound {
			anno.Errorf("chunk cache get %q: %v\n", key, err)
		}
		return nil, false
	}
	atomic.AddUint64(&c.hits, 1)
	return val, true
}

// Set stores a value for key.
func (c *ChunkCache) Set(key string, value []byte) {
	if c == nil {
		return
	}
	if err := c.cache.Set([]byte(key), value, 0); err != nil {
		anno.Debugf("chunk %q not cached: %v\n", key, err)
	}
}

// Del removes key from the cache.
func (c *ChunkCache) Del(key string) {
	if c == nil {
		return
	}
	c.cache.Del([]byte(key))
}

// Clear removes all entries.
func (c *ChunkCache) Clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

// Stats returns the number of lookups and hits so far.
func (c *ChunkCache) Stats() (attempts, hits uint64) {
	if c == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&c.attempts), atomic.LoadUint64(&c.hits)
}
