// Package cache is a bounded in-memory result cache with per-entry TTL and
// LRU eviction. It is a best-effort side cache: losing it on restart costs
// hit rate, never correctness. Guild isolation comes entirely from the key
// derivation, so the cache itself has no per-guild partitions.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Cache holds cached tool results keyed by derived hash.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	access     map[string]uint64
	tick       uint64
	maxEntries int
	defaultTTL time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
	now        func() time.Time
}

type entry struct {
	data      string
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Stats reports cache occupancy for monitoring.
type Stats struct {
	Total        int     `json:"total_entries"`
	Active       int     `json:"active_entries"`
	Expired      int     `json:"expired_entries"`
	MaxEntries   int     `json:"max_entries"`
	UsagePercent float64 `json:"usage_percent"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
}

// New creates a Cache with the given capacity and default TTL.
func New(maxEntries int, defaultTTL time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Cache{
		entries:    make(map[string]*entry),
		access:     make(map[string]uint64),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Key derives a stable cache key from the guild scope, provider, query, and
// any extra parameters that affect results. Parameter order never changes
// the key: the serialization is sorted.
func Key(guildID, provider, query string, extra map[string]string) string {
	fields := map[string]string{
		"guild_id": guildID,
		"provider": provider,
		"query":    query,
	}
	for k, v := range extra {
		fields[k] = v
	}
	// encoding/json writes map keys in sorted order.
	b, _ := json.Marshal(fields)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached data for key. Expired entries are deleted on read
// and report a miss; a hit refreshes the entry's LRU position.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return "", false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		delete(c.access, key)
		c.misses.Add(1)
		return "", false
	}

	c.touch(key)
	c.hits.Add(1)
	return e.data, true
}

// touch assigns the next value of a monotonic counter so eviction order is
// exact even when two accesses land on the same wall-clock instant. Callers
// hold c.mu.
func (c *Cache) touch(key string) {
	c.tick++
	c.access[key] = c.tick
}

// Set stores data under key. A non-positive ttl uses the default. When the
// cache is full and the key is new, the least-recently-accessed entry is
// evicted first.
func (c *Cache) Set(key, data string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	c.entries[key] = &entry{data: data, createdAt: c.now(), ttl: ttl}
	c.touch(key)
}

// evictLRU removes the single least-recently-accessed entry. Counter values
// are unique, so the choice is deterministic.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldest uint64
	for k, at := range c.access {
		if oldestKey == "" || at < oldest {
			oldestKey, oldest = k, at
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		delete(c.access, oldestKey)
	}
}

// ClearExpired removes every expired entry and returns the count removed.
func (c *Cache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cleared := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			delete(c.access, k)
			cleared++
		}
	}
	return cleared
}

// InvalidatePattern removes entries whose key contains substr and returns
// the count removed. This is a full scan; capacity bounds the cost.
func (c *Cache) InvalidatePattern(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	needle := strings.ToLower(substr)
	cleared := 0
	for k := range c.entries {
		if strings.Contains(strings.ToLower(k), needle) {
			delete(c.entries, k)
			delete(c.access, k)
			cleared++
		}
	}
	return cleared
}

// Stats returns occupancy and hit counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, e := range c.entries {
		if e.expired(now) {
			expired++
		}
	}
	total := len(c.entries)
	return Stats{
		Total:        total,
		Active:       total - expired,
		Expired:      expired,
		MaxEntries:   c.maxEntries,
		UsagePercent: float64(total) / float64(c.maxEntries) * 100,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}
}
