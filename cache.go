package voiceinfo

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a resolved post is served without asking the upstream again.
const DefaultCacheTTL = 5 * time.Minute

// Clock returns the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// CacheEntry is a resolved post and the moment it was fetched.
type CacheEntry struct {
	Data      Post
	Timestamp time.Time
}

// ResponseCache maps slugs to resolved posts. Entries are replaced whole and
// never merged; expiry is judged by IsExpired rather than by deletion.
type ResponseCache interface {
	Get(slug string) (CacheEntry, bool)
	Set(slug string, post Post)
	IsExpired(entry CacheEntry) bool
}

// MemoryCache is a process-local ResponseCache. Every edge instance holds its
// own copy, so instances may disagree for up to one TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	ttl     time.Duration
	clock   Clock
}

// NewMemoryCache creates a MemoryCache. A nil clock uses wall time; a
// non-positive ttl falls back to DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration, clock Clock) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &MemoryCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the entry stored for slug, expired or not.
func (c *MemoryCache) Get(slug string) (CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[slug]
	c.mu.RUnlock()
	return entry, ok
}

// Set stores post under slug stamped with the current time, replacing any previous entry.
func (c *MemoryCache) Set(slug string, post Post) {
	entry := CacheEntry{Data: post, Timestamp: c.clock.Now()}
	c.mu.Lock()
	c.entries[slug] = entry
	c.mu.Unlock()
}

// IsExpired reports whether entry is at least one TTL old.
func (c *MemoryCache) IsExpired(entry CacheEntry) bool {
	return c.clock.Now().Sub(entry.Timestamp) >= c.ttl
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// lookup returns the cached post when a live entry exists.
func lookup(c ResponseCache, slug string) (Post, bool) {
	entry, ok := c.Get(slug)
	if !ok || c.IsExpired(entry) {
		return Post{}, false
	}
	return entry.Data, true
}
