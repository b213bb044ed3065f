// Package cache provides snapshot caching for AI.me.
//
// Decoding a snapshot from storage walks every node and edge key of a
// version. Since snapshots are immutable once published, repeated reads
// of the same version can be served from memory safely.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rivadaviam/AI.me/pkg/graph"
)

// SnapshotCache is a thread-safe LRU cache for decoded snapshots.
//
// Entries are keyed by "graph@seq". Because published versions are
// append-only, cached snapshots never become stale; TTL exists only to
// bound memory held by rarely-read graphs.
type SnapshotCache struct {
	mu sync.Mutex

	maxSize int
	ttl     time.Duration

	list  *list.List
	items map[string]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       string
	snap      *graph.Snapshot
	expiresAt time.Time
}

// NewSnapshotCache creates a snapshot cache holding up to maxSize
// entries. A ttl of 0 disables time-based expiry.
func NewSnapshotCache(maxSize int, ttl time.Duration) *SnapshotCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &SnapshotCache{
		maxSize: maxSize,
		ttl:     ttl,
		list:    list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}
}

// Get retrieves a cached snapshot, moving it to the front of the LRU
// list on a hit.
func (c *SnapshotCache) Get(key string) (*graph.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.list.MoveToFront(elem)
	atomic.AddUint64(&c.hits, 1)
	return entry.snap, true
}

// Put adds a snapshot, evicting the least recently used entries when
// the cache is at capacity.
func (c *SnapshotCache) Put(key string, snap *graph.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.snap = snap
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.removeElement(c.list.Back())
	}

	entry := &cacheEntry{key: key, snap: snap}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.items[key] = c.list.PushFront(entry)
}

// Clear removes all entries.
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// Stats returns hit and miss counters alongside current occupancy.
func (c *SnapshotCache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.Lock()
	size := c.list.Len()
	c.mu.Unlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Caller must hold the lock.
func (c *SnapshotCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	c.list.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}
