// Package segcache is the SegIndex cache: a fixed-capacity LRU, keyed by
// segment name, of in-memory key->offset maps derived from sidecar index
// files. Eviction just drops the snapshot; it can always be reloaded
// from the sidecar file on the next access.
package segcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ensodb/enso/internal/ensoerr"
	"github.com/ensodb/enso/internal/sidx"
)

// DefaultCapacity is the default number of segments kept warm in the
// cache.
const DefaultCapacity = 4

// SegIndex is the in-memory key->offset map for one segment.
type SegIndex = map[string]uint64

// Cache is the shared SegIndex LRU. The underlying hashicorp/golang-lru
// container only guards its own name->entry bookkeeping; it says nothing
// about the contents of the SegIndex maps it stores. mu is the lock that
// actually protects those contents: readers (Lookup, Range) take it
// shared, and writers (InsertKey, Put, Evict) take it exclusive, so a
// reader never observes a SegIndex map mid-mutation.
type Cache struct {
	mu  sync.RWMutex
	lru *lru.Cache
}

// New builds a cache with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New(capacity)
	if err != nil {
		return nil, ensoerr.Io("create segindex cache", err)
	}
	return &Cache{lru: l}, nil
}

// entry returns the cached SegIndex for name, loading it from its
// sidecar index file at sidecarPath on a miss. The returned map must
// only be read or written while holding mu.
func (c *Cache) entry(name, sidecarPath string) (SegIndex, error) {
	c.mu.RLock()
	if v, ok := c.lru.Get(name); ok {
		c.mu.RUnlock()
		return v.(SegIndex), nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.lru.Get(name); ok {
		return v.(SegIndex), nil
	}
	idx, err := sidx.Load(sidecarPath)
	if err != nil {
		return nil, err
	}
	c.lru.Add(name, idx)
	return idx, nil
}

// Load ensures segment name's SegIndex is cached, without reading any
// particular key. Used to warm the cache on open.
func (c *Cache) Load(name, sidecarPath string) error {
	_, err := c.entry(name, sidecarPath)
	return err
}

// Lookup returns the offset recorded for key within segment name's
// SegIndex, loading the index from sidecarPath if it isn't already
// cached. Safe for concurrent callers.
func (c *Cache) Lookup(name, sidecarPath, key string) (offset uint64, hit bool, err error) {
	idx, err := c.entry(name, sidecarPath)
	if err != nil {
		return 0, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	off, hit := idx[key]
	return off, hit, nil
}

// Range calls fn for every key->offset pair currently in segment name's
// SegIndex, loading it from sidecarPath first if necessary. fn is called
// while mu is held for reading, so it must not call back into the cache
// or block.
func (c *Cache) Range(name, sidecarPath string, fn func(key string, offset uint64)) error {
	idx, err := c.entry(name, sidecarPath)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, off := range idx {
		fn(k, off)
	}
	return nil
}

// Put installs or replaces the SegIndex for segment name, e.g. after a
// fresh rotation or a compaction's new segment.
func (c *Cache) Put(name string, idx SegIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(name, idx)
}

// InsertKey records a single key->offset mapping into the cached SegIndex
// for name, loading it first if necessary. Used by the writer after each
// successful append to the active segment.
func (c *Cache) InsertKey(name, sidecarPath, key string, offset uint64) error {
	idx, err := c.entry(name, sidecarPath)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx[key] = offset
	return nil
}

// Evict drops the cached SegIndex for name, if present. Used after
// compaction removes the underlying segment.
func (c *Cache) Evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(name)
}

// Contains reports whether name currently has a cached entry, without
// affecting LRU recency.
func (c *Cache) Contains(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Contains(name)
}

// Len returns the number of cached segments.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
