// Package cache provides a version-keyed LRU for derived read results.
//
// Entries are keyed by (document, operation, argument fingerprint,
// document version). Because the document version moves on every
// committed mutation, results computed against an older version can
// never be returned again: stale entries are unreachable by
// construction and are evicted opportunistically or by LRU pressure.
package cache

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// Key identifies one cached result.
type Key struct {
	DocID       string
	Op          string
	Fingerprint uint64
	Version     uint64
}

// Cache is a fixed-capacity LRU, safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[Key]*list.Element

	hits   uint64
	misses uint64
}

type entry struct {
	key   Key
	value any
}

// New creates a cache holding at most capacity entries. Capacity below
// one disables caching entirely.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[Key]*list.Element),
	}
}

// Get returns the cached value for key if present and still current.
// A key whose Version differs from currentVersion is a miss; any
// entries for the same (doc, op, fingerprint) at older versions are
// dropped on the way through.
func (c *Cache) Get(key Key, currentVersion uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key.Version != currentVersion {
		// The caller asked for a stale version. Nothing useful here.
		c.misses++
		return nil, false
	}
	el, ok := c.items[key]
	if !ok {
		// Opportunistically clear any superseded entries for this
		// lookup so dead versions do not squat in the LRU.
		for v := range c.items {
			if v.DocID == key.DocID && v.Op == key.Op &&
				v.Fingerprint == key.Fingerprint && v.Version < currentVersion {
				c.removeLocked(v)
			}
		}
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return el.Value.(*entry).value, true
}

// Put stores value under key, evicting the least recently used entry
// when over capacity.
func (c *Cache) Put(key Key, value any) {
	if c.capacity < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&entry{key: key, value: value})
	c.items[key] = el
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry).key)
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats reports cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[Key]*list.Element)
}

func (c *Cache) removeLocked(key Key) {
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Fingerprint hashes an argument map into a stable 64-bit value using
// FNV-1a. Keys are visited in sorted order so equal maps always
// fingerprint identically.
func Fingerprint(args map[string]any) uint64 {
	h := fnv.New64a()
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		fmt.Fprintf(h, "%v", args[k])
		h.Write([]byte{0})
	}
	return h.Sum64()
}
