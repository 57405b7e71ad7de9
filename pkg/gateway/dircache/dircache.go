// Package dircache caches directory listings between the HTTP layer and the
// object store. Entries carry a per-mount TTL and are scoped to a principal
// class so listings rendered for one permission scope never leak to another.
package dircache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// DefaultMaxEntries bounds the cache when no limit is configured.
const DefaultMaxEntries = 4096

// Key identifies one cached listing. PrincipalClass partitions entries by
// permission scope (for example an API key ID or "admin"), so two callers
// with different visibility never share an entry.
type Key struct {
	MountID        string
	SubPath        string
	PrincipalClass string
}

// Stats contains cache counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

type entry struct {
	key       Key
	value     any
	expiresAt time.Time
	elem      *list.Element
}

// Cache is a TTL plus LRU bounded directory-listing cache.
//
// Lookup uses a double-check pattern: RLock for the common hit path, Lock only
// to mutate. Eviction removes the least recently used entry once the bound is
// reached; expired entries are dropped lazily on access.
type Cache struct {
	mu         sync.RWMutex
	entries    map[Key]*entry
	order      *list.List
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache bounded to maxEntries. Zero or negative means
// DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[Key]*entry),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the cached value for key, or false on miss or expiry.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	if ok && time.Now().Before(e.expiresAt) {
		value := e.value
		c.mu.RUnlock()
		c.hits.Add(1)
		c.touch(key)
		return value, true
	}
	c.mu.RUnlock()

	if ok {
		// Expired entry, drop it.
		c.mu.Lock()
		if e, stillThere := c.entries[key]; stillThere && !time.Now().Before(e.expiresAt) {
			c.removeLocked(e)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	return nil, false
}

func (c *Cache) touch(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
	}
	c.mu.Unlock()
}

// Put stores value under key for ttl. A non-positive ttl disables caching for
// the entry, so the call is a no-op.
func (c *Cache) Put(key Key, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(e.elem)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}

	e := &entry{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.order.Remove(e.elem)
}

// Invalidate drops every principal's entry for the exact (mount, subPath)
// pair plus all ancestor directories of subPath within the mount. A write
// under /a/b changes the listing of /a/b/ and of every parent up to the mount
// root.
func (c *Cache) Invalidate(mountID, subPath string) {
	dirs := map[string]bool{}
	if vpath.IsDir(subPath) {
		dirs[subPath] = true
	}
	for _, a := range vpath.Ancestors(subPath) {
		dirs[a] = true
	}

	c.invalidateIf(func(k Key) bool {
		return k.MountID == mountID && dirs[k.SubPath]
	})
}

// InvalidateMount drops every entry belonging to a mount.
func (c *Cache) InvalidateMount(mountID string) {
	c.invalidateIf(func(k Key) bool { return k.MountID == mountID })
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.order.Init()
	c.mu.Unlock()
}

func (c *Cache) invalidateIf(match func(Key) bool) {
	c.mu.Lock()
	for k, e := range c.entries {
		if match(k) {
			c.removeLocked(e)
		}
	}
	c.mu.Unlock()
}

// Stats returns current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := int64(len(c.entries))
	c.mu.RUnlock()
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}
