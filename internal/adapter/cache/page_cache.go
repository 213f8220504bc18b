package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

// PageCache memoizes rendered dataset pages served by the API. Entries are
// keyed by file path, modification time and pagination window, so a rewritten
// artifact never serves stale pages. LRU eviction bounds memory.
type PageCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	page      any
	timestamp time.Time
}

func NewPageCache(maxSize int, ttl time.Duration) *PageCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PageCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(path string, modTime time.Time, page, pageSize int) string {
	data := []byte(path)
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(modTime.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], uint64(page))
	binary.BigEndian.PutUint64(buf[16:], uint64(pageSize))
	data = append(data, buf[:]...)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

func (c *PageCache) Get(path string, modTime time.Time, page, pageSize int) (any, bool) {
	key := cacheKey(path, modTime, page, pageSize)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Since(entry.timestamp) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return entry.page, true
}

func (c *PageCache) Put(path string, modTime time.Time, page, pageSize int, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(path, modTime, page, pageSize)

	if _, exists := c.entries[key]; exists {
		c.entries[key] = &cacheEntry{page: payload, timestamp: time.Now()}
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{page: payload, timestamp: time.Now()}
	c.order = append(c.order, key)
}

func (c *PageCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

func (c *PageCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *PageCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *PageCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *PageCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
