package cache

import (
	"context"
	"sync"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// MemoryCache is a thread-safe in-process enrichment cache.
// Entries never expire; it serves tests and the server's memory mode.
type MemoryCache struct {
	data  map[string]domain.CacheEntry
	mutex sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]domain.CacheEntry),
	}
}

// Get retrieves the entry for a product hash
func (c *MemoryCache) Get(ctx context.Context, productHash string) (*domain.CacheEntry, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.data[productHash]
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	// copy so callers cannot mutate the stored entry
	out := entry
	return &out, nil
}

// Put inserts or replaces the entry for its product hash
func (c *MemoryCache) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.ProductHash == "" {
		return domain.ErrInvalidRequest
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[entry.ProductHash] = entry
	return nil
}

// Stats returns entry count, mean confidence and per-model counts
func (c *MemoryCache) Stats(ctx context.Context) (*domain.CacheStats, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := &domain.CacheStats{ByModel: make(map[string]int)}
	var sum float64
	for _, e := range c.data {
		stats.TotalEntries++
		sum += e.ConfidenceScore
		stats.ByModel[e.ModelUsed]++
	}
	if stats.TotalEntries > 0 {
		stats.AverageConfidence = sum / float64(stats.TotalEntries)
	}
	return stats, nil
}

// Size returns the current number of entries in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Clear removes all entries from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]domain.CacheEntry)
}
