package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a byte-oriented key/value cache with per-entry TTL
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Backend() string
}

// Stats summarizes store activity
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRatio  float64 `json:"hit_ratio"`
}

// MemoryStore keeps entries in process with time-based expiration and
// least-recently-used eviction once maxEntries is reached.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	value    []byte
	expires  time.Time
	accessed time.Time
}

// NewMemoryStore creates a store bounded to maxEntries (minimum 1)
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryStore{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryStore) Backend() string { return "memory" }

// Get returns a copy of the value if present and not expired
func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	now := c.now()
	if !ok || !now.Before(entry.expires) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false, nil
	}

	entry.accessed = now
	c.hits++
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. A non-positive ttl stores nothing.
func (c *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}
	c.entries[key] = &cacheEntry{
		value:    append([]byte(nil), value...),
		expires:  now.Add(ttl),
		accessed: now,
	}
	return nil
}

// Stats returns cache performance statistics
func (c *MemoryStore) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	ratio := 0.0
	if total := c.hits + c.misses; total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
		HitRatio:  ratio,
	}
}

// evictLRU removes the least recently used entry (caller must hold the lock)
func (c *MemoryStore) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.accessed.Before(oldest) || (entry.accessed.Equal(oldest) && key < oldestKey) {
			oldestKey = key
			oldest = entry.accessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}
