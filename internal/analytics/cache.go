package analytics

import (
	"context"
	"sync"
	"time"
)

// Cache absorbs repeated dashboard polling: aggregation results are
// expensive provider round trips, so identical windows are served from
// here for a short TTL.
//
// Implementations must treat storage failures as misses; a broken cache
// must never fail an aggregation.
type Cache interface {
	// Get returns the cached payload and its age. A stale or missing
	// entry is reported as a miss.
	Get(ctx context.Context, key string) (value []byte, age time.Duration, ok bool)

	// Set stores a payload, replacing any previous entry for the key.
	Set(ctx context.Context, key string, value []byte)
}

// MemoryCache is the default in-process Cache: two maps keyed identically,
// one for payloads and one for write timestamps. Entries expire purely by
// time; overwrite on recomputation is the only eviction. The key space is
// one entry per distinct window requested, so it stays tiny.
type MemoryCache struct {
	mu sync.Mutex

	data      map[string][]byte
	timestamp map[string]time.Time

	ttl   time.Duration
	clock func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		data:      map[string][]byte{},
		timestamp: map[string]time.Time{},
		ttl:       ttl,
		clock:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.timestamp[key]
	if !ok {
		return nil, 0, false
	}
	age := c.clock().Sub(ts)
	if age >= c.ttl {
		return nil, 0, false
	}
	return c.data[key], age, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.timestamp[key] = c.clock()
}

// NopCache disables caching; every Get is a miss. Useful in tests that
// assert collaborator call counts.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, time.Duration, bool) { return nil, 0, false }
func (NopCache) Set(context.Context, string, []byte)                       {}
