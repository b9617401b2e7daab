// Package ristretto implements the cache port over dgraph-io/ristretto. The
// engine uses it as an L1 for terminal execution plans, which are immutable
// once written.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Terminal plans are small JSON documents; assume ~4KB per entry when sizing
// the admission counters.
const assumedEntryBytes = 4 << 10

// Cache is a ristretto-backed byte cache keyed by string.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxSizeMB megabytes of values. An
// entry's cost is the byte length of its value.
func New(maxSizeMB int) (*Cache, error) {
	maxCost := int64(maxSizeMB) << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Ristretto wants counters for ~10x the expected item count.
		NumCounters: maxCost / assumedEntryBytes * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached value for key, reporting whether it was present.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value under key for at most ttl. Admission is best effort;
// ristretto may drop the write under pressure, which is acceptable for an L1.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes key from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's internal goroutines and buffers.
func (c *Cache) Close() {
	c.c.Close()
}
