package raster

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache keeps loaded rasters in memory with least-recently-used eviction.
//
// Memory use is estimated from cell count. Concurrent Gets for the same
// key share one load.
//
// Example:
//
//	cache := raster.NewCache(512 << 20)
//	dem, err := cache.Get("dem.tif", func() (*raster.Raster, error) {
//	    return raster.Load("dem.tif")
//	})
type Cache struct {
	maxBytes  int64
	usedBytes int64
	entries   map[string]*cacheEntry
	lru       *list.List
	mu        sync.Mutex
	loads     singleflight.Group

	hits, misses int
}

type cacheEntry struct {
	key        string
	raster     *Raster
	size       int64
	element    *list.Element
	lastAccess time.Time
}

// NewCache returns a cache bounded by maxBytes. Zero means unbounded.
func NewCache(maxBytes int64) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[string]*cacheEntry),
		lru:      list.New(),
	}
}

// Get returns the cached raster for key or calls load on a miss. A raster
// too large for the cache is returned without being cached.
//
// Cached rasters are shared: callers must not Set cells on them.
func (c *Cache) Get(key string, load func() (*Raster, error)) (*Raster, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		e.lastAccess = time.Now()
		c.lru.MoveToFront(e.element)
		c.mu.Unlock()
		return e.raster, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.loads.Do(key, func() (any, error) {
		r, err := load()
		if err != nil {
			return nil, fmt.Errorf("load raster %s: %w", key, err)
		}
		_ = c.Add(key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Raster), nil
}

// Add stores r under key, evicting least-recently-used entries to make
// room.
func (c *Cache) Add(key string, r *Raster) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := estimateSize(r)
	if e, ok := c.entries[key]; ok {
		c.usedBytes += size - e.size
		e.raster, e.size, e.lastAccess = r, size, time.Now()
		c.lru.MoveToFront(e.element)
		c.evict()
		return nil
	}
	if c.maxBytes > 0 && size > c.maxBytes {
		return fmt.Errorf("raster %s too large for cache (%d bytes > %d bytes max)", key, size, c.maxBytes)
	}

	e := &cacheEntry{key: key, raster: r, size: size, lastAccess: time.Now()}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
	c.usedBytes += size
	c.evict()
	return nil
}

// evict drops entries from the back of the LRU list until the cache fits.
// Must be called with c.mu held.
func (c *Cache) evict() {
	for c.maxBytes > 0 && c.usedBytes > c.maxBytes && c.lru.Len() > 1 {
		c.remove(c.lru.Back().Value.(*cacheEntry))
	}
}

func (c *Cache) remove(e *cacheEntry) {
	c.lru.Remove(e.element)
	delete(c.entries, e.key)
	c.usedBytes -= e.size
}

// Remove drops key from the cache.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
	c.usedBytes = 0
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Count:     len(c.entries),
		UsedBytes: c.usedBytes,
		MaxBytes:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
	}
}

// CacheStats holds cache counters.
type CacheStats struct {
	Count     int   // rasters currently cached
	UsedBytes int64 // estimated memory in use
	MaxBytes  int64 // configured limit, 0 for none
	Hits      int
	Misses    int
}

// estimateSize approximates the memory held by r: eight bytes per cell
// plus a fixed header.
func estimateSize(r *Raster) int64 {
	if r == nil {
		return 0
	}
	return 256 + int64(r.width)*int64(r.height)*int64(len(r.data))*8
}
