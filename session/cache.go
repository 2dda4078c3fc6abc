package session

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/refdata-portal/authz"
)

type cacheEntry struct {
	id         string
	role       authz.Role
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// RoleCache is an in-memory LRU cache with TTL mapping principal ids to
// their current role. Safe for concurrent use.
type RoleCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// NewRoleCache creates a RoleCache with the given capacity and TTL
func NewRoleCache(maxSize int, ttl time.Duration) *RoleCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &RoleCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached role for id
func (c *RoleCache) Get(id string) (authz.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(id)
		}
		return "", false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.role, true
}

// Set stores role for id, evicting the least recently used entry when full
func (c *RoleCache) Set(id string, role authz.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[id]; exists {
		entry.role = role
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{id: id, role: role, insertedAt: time.Now()}
	entry.element = c.lruList.PushFront(id)
	c.entries[id] = entry
}

// Invalidate removes the entry for id
func (c *RoleCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntry(id)
}

// Clear removes all entries
func (c *RoleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// Stats returns cache statistics
func (c *RoleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CleanupExpired removes expired entries and returns how many were removed
func (c *RoleCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			c.removeEntry(id)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically removes expired entries until stopCh closes
func (c *RoleCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// must be called with lock held
func (c *RoleCache) removeEntry(id string) {
	if entry, exists := c.entries[id]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, id)
	}
}

// must be called with lock held
func (c *RoleCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, id)
}
