package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingSearcher struct {
	calls  int
	places []domain.Place
	err    error
}

func (m *countingSearcher) SearchPlaces(_ context.Context, _ string) ([]domain.Place, error) {
	m.calls++
	return m.places, m.err
}

// --- CachedSearcher tests ---

func TestCachedSearcher_Hit(t *testing.T) {
	inner := &countingSearcher{places: []domain.Place{{Name: "Santiago, Chile", Lat: -33.4, Lon: -70.6}}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSearcher(inner, 10, metrics)

	p1, err := cached.SearchPlaces(context.Background(), "Santiago")
	require.NoError(t, err)
	p2, err := cached.SearchPlaces(context.Background(), "  SANTIAGO ")
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, inner.calls, "normalized queries share a cache entry")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")), 0)
}

func TestCachedSearcher_EmptyNotCached(t *testing.T) {
	inner := &countingSearcher{places: []domain.Place{}}
	cached := NewCachedSearcher(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.SearchPlaces(context.Background(), "nowhere")
	_, _ = cached.SearchPlaces(context.Background(), "nowhere")
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSearcher_ErrorNotCached(t *testing.T) {
	inner := &countingSearcher{err: errors.New("boom")}
	cached := NewCachedSearcher(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.SearchPlaces(context.Background(), "Lima")
	require.Error(t, err)

	inner.err = nil
	inner.places = []domain.Place{{Name: "Lima"}}
	places, err := cached.SearchPlaces(context.Background(), "Lima")
	require.NoError(t, err)
	assert.Len(t, places, 1)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSearcher_BlankQuery(t *testing.T) {
	inner := &countingSearcher{}
	cached := NewCachedSearcher(inner, 10, observability.NewMetricsForTesting())

	places, err := cached.SearchPlaces(context.Background(), " \t ")
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.Zero(t, inner.calls)
}

// --- LRU tests ---

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []domain.Place{{Name: "A"}})
	c.put("b", []domain.Place{{Name: "B"}})

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.get("a")
	require.True(t, ok)

	c.put("c", []domain.Place{{Name: "C"}})

	_, ok = c.get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []domain.Place{{Name: "old"}})
	c.put("a", []domain.Place{{Name: "new"}})

	places, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "new", places[0].Name)
	assert.Equal(t, 1, c.size())
}

func TestLRUCache_SingleEntry(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", nil)
	c.put("b", nil)

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
}
