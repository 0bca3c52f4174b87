package feed

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a loaded window is served without a network call.
const DefaultTTL = 2 * time.Minute

// Entry is a cached load for one window key.
type Entry struct {
	Result
	FetchedAt time.Time
}

// Cache holds at most one entry per window key. Entries are replaced by the
// next successful load for the key and never evicted otherwise.
type Cache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache creates a cache whose entries stay fresh for ttl.
func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]Entry),
	}
}

// Get returns the entry for key regardless of its age.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e, ok
}

// Fresh reports whether e is younger than the TTL.
func (c *Cache) Fresh(e Entry) bool {
	return c.clock.Since(e.FetchedAt) < c.ttl
}

// Put stores r under key, stamped with the current time.
func (c *Cache) Put(key string, r Result) Entry {
	e := Entry{Result: r, FetchedAt: c.clock.Now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
	return e
}

// Len returns the number of cached windows.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the freshness period.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
