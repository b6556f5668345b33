package cache

import (
	"time"

	"github.com/aristath/helmsman/internal/fingerprint"
)

// Default TTLs for the two namespaces.
const (
	DefaultRecommendationTTL = 48 * time.Hour
	DefaultAnalyticsTTL      = 4 * time.Hour
)

// RecommendationCache memoises plans and scenario scores keyed by portfolio
// fingerprint, settings hash, and category.
type RecommendationCache struct {
	store *Store
	ttl   time.Duration
}

// NewRecommendationCache wraps a store with the recommendation namespace.
func NewRecommendationCache(store *Store, ttl time.Duration) *RecommendationCache {
	if ttl <= 0 {
		ttl = DefaultRecommendationTTL
	}
	return &RecommendationCache{store: store, ttl: ttl}
}

// Get loads a cached value; false on miss.
func (c *RecommendationCache) Get(fp, settingsHash, category string, dest interface{}) (bool, error) {
	return c.store.Get(fingerprint.CacheKey(fp, settingsHash, category), dest)
}

// Put stores a value under the namespace TTL.
func (c *RecommendationCache) Put(fp, settingsHash, category string, value interface{}) error {
	return c.store.Put(fingerprint.CacheKey(fp, settingsHash, category), CategoryRecommendation, value, c.ttl)
}

// Invalidate drops every entry for a portfolio fingerprint.
func (c *RecommendationCache) Invalidate(fp string) error {
	return c.store.InvalidateFingerprint(fp)
}

// AnalyticsCache memoises per-symbol analytics keyed by arbitrary strings.
type AnalyticsCache struct {
	store *Store
	ttl   time.Duration
}

// NewAnalyticsCache wraps a store with the analytics namespace.
func NewAnalyticsCache(store *Store, ttl time.Duration) *AnalyticsCache {
	if ttl <= 0 {
		ttl = DefaultAnalyticsTTL
	}
	return &AnalyticsCache{store: store, ttl: ttl}
}

// Get loads a cached value; false on miss.
func (c *AnalyticsCache) Get(key string, dest interface{}) (bool, error) {
	return c.store.Get("analytics:"+key, dest)
}

// Put stores a value under the namespace TTL.
func (c *AnalyticsCache) Put(key string, value interface{}) error {
	return c.store.Put("analytics:"+key, CategoryAnalytics, value, c.ttl)
}
