package voiceinfo

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache(5*time.Minute, clock)

	_, ok := cache.Get("hello-world")
	require.False(t, ok)

	post := Post{Slug: "hello-world", Title: "Hello World"}
	cache.Set("hello-world", post)

	entry, ok := cache.Get("hello-world")
	require.True(t, ok)
	assert.Equal(t, post, entry.Data)
	assert.Equal(t, clock.Now(), entry.Timestamp)
	assert.False(t, cache.IsExpired(entry))

	got, ok := lookup(cache, "hello-world")
	require.True(t, ok)
	assert.Equal(t, post, got)
}

func TestMemoryCacheExpiresAtTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache(5*time.Minute, clock)
	cache.Set("a", Post{Slug: "a"})

	clock.Advance(5*time.Minute - time.Nanosecond)
	_, ok := lookup(cache, "a")
	assert.True(t, ok, "entry should be live just before the TTL")

	clock.Advance(time.Nanosecond)
	_, ok = lookup(cache, "a")
	assert.False(t, ok, "entry should be expired at exactly the TTL")

	entry, ok := cache.Get("a")
	require.True(t, ok, "expired entries are not deleted")
	assert.True(t, cache.IsExpired(entry))
}

func TestMemoryCacheOverwriteReplacesWholeEntry(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache(time.Minute, clock)

	cache.Set("a", Post{Slug: "a", Title: "old", Excerpt: "kept?"})
	clock.Advance(30 * time.Second)
	cache.Set("a", Post{Slug: "a", Title: "new"})

	entry, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, Post{Slug: "a", Title: "new"}, entry.Data)
	assert.Equal(t, clock.Now(), entry.Timestamp)
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCacheDefaults(t *testing.T) {
	cache := NewMemoryCache(0, nil)
	assert.Equal(t, DefaultCacheTTL, cache.ttl)
	cache.Set("a", Post{})
	entry, _ := cache.Get("a")
	assert.WithinDuration(t, time.Now(), entry.Timestamp, time.Second)
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(time.Minute, newFakeClock())
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slug := fmt.Sprintf("post-%d", i%5)
			cache.Set(slug, Post{Slug: slug})
			_, _ = lookup(cache, slug)
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, cache.Len())
}
