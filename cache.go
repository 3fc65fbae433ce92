package thingsboard

import (
	"sync"
	"time"
)

// Cache defines an interface for caching API responses.
// Implementations must be safe for concurrent access.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns the value and true if found and not expired, or nil and false otherwise.
	Get(key string) (any, bool)

	// Set stores a value in the cache with the given TTL.
	// If TTL is 0 or negative, the entry never expires.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()
}

// cacheEntry expires at deadline; a zero deadline never expires.
type cacheEntry struct {
	value    any
	deadline time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// MemoryCache is a thread-safe in-memory cache implementation.
type MemoryCache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.expired(time.Now()) {
		c.mu.Lock()
		// Another Set may have replaced the entry meanwhile.
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in the cache with the given TTL.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	entry := &cacheEntry{value: value}
	if ttl > 0 {
		entry.deadline = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all values from the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Size returns the number of entries in the cache (including expired ones).
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheConfig configures the caching behavior for a Client.
// Only device profiles and profile infos are cached. Devices, attributes and
// telemetry change too often and are always fetched.
type CacheConfig struct {
	// Cache is the cache implementation to use.
	Cache Cache

	// DeviceProfileTTL is how long to cache device profiles and profile infos.
	// Defaults to 1 hour if zero.
	DeviceProfileTTL time.Duration
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Cache:            NewMemoryCache(),
		DeviceProfileTTL: 1 * time.Hour,
	}
}

// cacheKey generates a cache key for the given resource type and identifiers.
func cacheKey(resourceType string, ids ...string) string {
	key := resourceType
	for _, id := range ids {
		key += ":" + id
	}
	return key
}

// WithCache enables response caching for the client.
//
// Example:
//
//	client, _ := thingsboard.NewClient(url, user, pass,
//	    thingsboard.WithCache(thingsboard.DefaultCacheConfig()),
//	)
func WithCache(config *CacheConfig) Option {
	return func(c *Client) {
		if config == nil {
			config = DefaultCacheConfig()
		}
		if config.Cache == nil {
			config.Cache = NewMemoryCache()
		}
		if config.DeviceProfileTTL == 0 {
			config.DeviceProfileTTL = 1 * time.Hour
		}
		c.cacheConfig = config
	}
}

// getCached returns a copy of the value cached under key, or runs fetch and
// caches a copy of its result. Callers own the returned struct, but nested
// maps and pointers are shared with the cache and must not be modified.
// Without a configured cache it always fetches.
func getCached[T any](c *Client, key string, ttl time.Duration, fetch func() (*T, error)) (*T, error) {
	if c.cacheConfig == nil || c.cacheConfig.Cache == nil {
		return fetch()
	}

	if cached, ok := c.cacheConfig.Cache.Get(key); ok {
		if v, ok := cached.(T); ok {
			return &v, nil
		}
	}

	result, err := fetch()
	if err != nil || result == nil {
		return result, err
	}
	c.cacheConfig.Cache.Set(key, *result, ttl)
	return result, nil
}

// InvalidateCache removes a specific entry from the cache.
func (c *Client) InvalidateCache(resourceType string, ids ...string) {
	if c.cacheConfig != nil && c.cacheConfig.Cache != nil {
		c.cacheConfig.Cache.Delete(cacheKey(resourceType, ids...))
	}
}

// ClearCache drops every cached entry.
func (c *Client) ClearCache() {
	if c.cacheConfig != nil && c.cacheConfig.Cache != nil {
		c.cacheConfig.Cache.Clear()
	}
}
