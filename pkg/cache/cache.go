package cache

import (
	"sync"
	"time"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
)

// Cache is a process-wide key -> (value, storedAt) map fronting expensive
// CLI-backed reads. Staleness is evaluated lazily at read time against a
// caller-supplied TTL; entries never self-expire and are only replaced by
// overwrite. Unbounded key growth is accepted for an operator-run process.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	// now is replaceable in tests
	now func() time.Time
}

type entry struct {
	value    any
	storedAt time.Time
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key iff an entry exists, forceRefresh is
// false, and the entry is no older than ttl. The second return reports
// whether a usable value was found; on a miss the caller recomputes and
// calls Set.
func (c *Cache) Get(key string, ttl time.Duration, forceRefresh bool) (any, bool) {
	if forceRefresh {
		metrics.CacheMisses.Inc()
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) > ttl {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return e.value, true
}

// Set unconditionally overwrites the entry for key, stamping current time
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// Len returns the number of distinct keys stored
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
