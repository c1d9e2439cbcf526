package services

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// CacheEntry represents a cached item with its write timestamp and TTL.
// Storing CachedAt rather than only the deadline lets readers report the
// remaining time-to-expiry.
type CacheEntry struct {
	Data     interface{}
	CachedAt time.Time
	TTL      time.Duration
}

// ExpiresAt returns the absolute expiry deadline.
func (ce *CacheEntry) ExpiresAt() time.Time {
	return ce.CachedAt.Add(ce.TTL)
}

// RemainingTTL returns how long the entry stays valid from now, zero when
// expired.
func (ce *CacheEntry) RemainingTTL(now time.Time) time.Duration {
	remaining := ce.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CacheService is the in-memory TTL cache for upstream responses and health
// snapshots. Expiry is lazy: reads after the TTL behave as a miss whether or
// not the cleanup ticker has purged the entry yet. Safe for concurrent use.
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
}

// NewCacheService creates a cache with the given default TTL and max size.
func NewCacheService(defaultTTL time.Duration, maxSize int) *CacheService {
	cs := &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		now:        time.Now,
	}

	go cs.cleanupExpired()

	return cs
}

// PlateCacheKey derives the cache key for a registration number. Hash of the
// uppercased plate; collisions only cost cache efficiency, never correctness.
func PlateCacheKey(plate string) string {
	sum := md5.Sum([]byte(strings.ToUpper(plate)))
	return "vehicle_cache_" + hex.EncodeToString(sum[:])
}

// Get retrieves an unexpired entry. The boolean is false on miss or expiry.
func (cs *CacheService) Get(key string) (*CacheEntry, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	entry, exists := cs.cache[key]
	if !exists || cs.now().After(entry.ExpiresAt()) {
		return nil, false
	}

	return entry, true
}

// Set stores a value with the default TTL.
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL. Last writer wins on races.
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:     value,
		CachedAt: cs.now(),
		TTL:      ttl,
	}
}

// evictOldest removes the entry with the earliest expiry (simple FIFO-style eviction)
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt().Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt()
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Delete removes a single entry.
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Clear removes all entries. Used by the admin cache-clear action.
func (cs *CacheService) Clear() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache = make(map[string]*CacheEntry)
}

// Size returns the number of entries, expired ones included until cleanup.
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// cleanupExpired removes expired entries on a fixed interval.
func (cs *CacheService) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cs.mutex.Lock()
		now := cs.now()
		for key, entry := range cs.cache {
			if now.After(entry.ExpiresAt()) {
				delete(cs.cache, key)
			}
		}
		cs.mutex.Unlock()
	}
}
