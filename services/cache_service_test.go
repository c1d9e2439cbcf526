package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCacheService(time.Hour, 100)

	cache.Set("key", "value")

	entry, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", entry.Data)
	assert.Equal(t, time.Hour, entry.TTL)
}

func TestCacheMiss(t *testing.T) {
	cache := NewCacheService(time.Hour, 100)

	_, ok := cache.Get("absent")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCacheService(time.Hour, 100)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Set("key", "value")

	current = current.Add(59 * time.Minute)
	entry, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, time.Minute, entry.RemainingTTL(current))

	// One second past the deadline reads as a miss even before cleanup runs.
	current = current.Add(time.Minute + time.Second)
	_, ok = cache.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Size())
}

func TestCacheSetWithTTLOverridesDefault(t *testing.T) {
	cache := NewCacheService(time.Hour, 100)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.SetWithTTL("key", "value", time.Minute)

	current = current.Add(2 * time.Minute)
	_, ok := cache.Get("key")
	assert.False(t, ok)
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	cache := NewCacheService(time.Hour, 3)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), i)
		current = current.Add(time.Second)
	}

	cache.Set("key-3", 3)

	assert.Equal(t, 3, cache.Size())
	_, ok := cache.Get("key-0")
	assert.False(t, ok, "earliest entry should have been evicted")
	_, ok = cache.Get("key-3")
	assert.True(t, ok)
}

func TestCacheDeleteAndClear(t *testing.T) {
	cache := NewCacheService(time.Hour, 100)

	cache.Set("a", 1)
	cache.Set("b", 2)

	cache.Delete("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Size())

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestPlateCacheKey(t *testing.T) {
	// Key derivation is case-insensitive over the plate.
	assert.Equal(t, PlateCacheKey("co11204"), PlateCacheKey("CO11204"))
	assert.NotEqual(t, PlateCacheKey("CO11204"), PlateCacheKey("CO11205"))

	// Pinned so the key format never silently changes shape.
	assert.Equal(t, "vehicle_cache_4044f28c4af94df372c710514b59c299", PlateCacheKey("CO11204"))
}
