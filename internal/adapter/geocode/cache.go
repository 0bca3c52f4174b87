package geocode

import (
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// CachedSearcher wraps a PlaceSearcher with an in-memory LRU cache keyed by
// the normalized query.
type CachedSearcher struct {
	inner   domain.PlaceSearcher
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedSearcher creates a cache decorator around a place searcher.
func NewCachedSearcher(inner domain.PlaceSearcher, maxEntries int, metrics *observability.Metrics) *CachedSearcher {
	return &CachedSearcher{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedSearcher) SearchPlaces(ctx context.Context, query string) ([]domain.Place, error) {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if key == "" {
		return []domain.Place{}, nil
	}
	if places, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return places, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	places, err := c.inner.SearchPlaces(ctx, query)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached so a later search can still succeed.
	if len(places) > 0 {
		c.cache.put(key, places)
	}
	return places, nil
}

// lruCache is a thread-safe LRU cache of search results.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key    string
	places []domain.Place
	prev   *entry
	next   *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.places, true
}

func (c *lruCache) put(key string, places []domain.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.places = places
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, places: places}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		oldest := c.tail
		c.unlink(oldest)
		delete(c.entries, oldest.key)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache) pushFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
