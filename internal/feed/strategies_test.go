package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/feed"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestStrategies_Month_Success(t *testing.T) {
	f := newFakeFetcher()
	f.records["month"] = []domain.Earthquake{quake("m1", 3, t0)}
	metrics := newTestMetrics()

	res, err := feed.NewStrategies(f, discardLogger(), metrics).Month(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"m1"}, recordIDs(res.Records))
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Reason)
	assert.Equal(t, 0, f.callCount("week"))
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.MonthFallbacks), 0)
}

func TestStrategies_Month_FallsBackToWeek(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"http 500", domain.HTTPStatusError("fetch month", 500)},
		{"network", domain.NetworkError("fetch month", context.DeadlineExceeded)},
		{"parse", domain.ParseError("fetch month", domain.ErrMalformedRecord)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.errs["month"] = tt.err
			f.records["week"] = []domain.Earthquake{quake("w1", 4, t0), quake("w2", 2, t0.Add(-time.Hour))}
			metrics := newTestMetrics()

			res, err := feed.NewStrategies(f, discardLogger(), metrics).Month(context.Background())
			require.NoError(t, err)

			assert.Equal(t, []string{"w1", "w2"}, recordIDs(res.Records))
			assert.True(t, res.Degraded)
			assert.Contains(t, res.Reason, tt.err.Error())
			assert.Equal(t, 1, f.callCount("month"), "month feed is not retried")
			assert.Equal(t, 1, f.callCount("week"))
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.MonthFallbacks), 0)
		})
	}
}

func TestStrategies_Month_CancelledDoesNotFallBack(t *testing.T) {
	f := newFakeFetcher()
	f.errs["month"] = domain.CancelledError("fetch month")

	_, err := feed.NewStrategies(f, discardLogger(), newTestMetrics()).Month(context.Background())
	require.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, 0, f.callCount("week"))
}

func TestStrategies_Month_BothFail(t *testing.T) {
	f := newFakeFetcher()
	f.errs["month"] = domain.HTTPStatusError("fetch month", 500)
	f.errs["week"] = domain.HTTPStatusError("fetch week", 503)

	_, err := feed.NewStrategies(f, discardLogger(), newTestMetrics()).Month(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "month fallback")
	assert.Equal(t, domain.KindHTTPStatus, domain.KindOf(err))
	assert.Equal(t, 503, domain.StatusCode(err))
}

func TestStrategies_Custom(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	lastInstant := time.Date(2024, time.January, 3, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	f := newFakeFetcher()
	f.records["query"] = []domain.Earthquake{
		quake("after", 1, lastInstant.Add(time.Millisecond)),
		quake("last", 1, lastInstant),
		quake("middle", 1, start.Add(30*time.Hour)),
		quake("first", 1, start),
		quake("before", 1, start.Add(-time.Millisecond)),
	}

	res, err := feed.NewStrategies(f, discardLogger(), newTestMetrics()).Custom(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"last", "middle", "first"}, recordIDs(res.Records))
	assert.False(t, res.Degraded)
	require.Len(t, f.ranges, 1)
	assert.Equal(t, start, f.ranges[0][0])
	assert.Equal(t, end, f.ranges[0][1])
}

func TestStrategies_Custom_InvalidRange(t *testing.T) {
	f := newFakeFetcher()
	_, err := feed.NewStrategies(f, discardLogger(), newTestMetrics()).Custom(context.Background(), t0, t0.AddDate(0, 0, -1))
	require.ErrorIs(t, err, domain.ErrInvalidRange)
	assert.Equal(t, 0, f.callCount("query"))
}

func TestStrategies_Custom_NoFallback(t *testing.T) {
	f := newFakeFetcher()
	f.errs["query"] = domain.HTTPStatusError("fetch query", 400)

	_, err := feed.NewStrategies(f, discardLogger(), newTestMetrics()).Custom(context.Background(), t0, t0)
	require.Error(t, err)
	assert.Equal(t, 400, domain.StatusCode(err))
	assert.Equal(t, 0, f.callCount("week"))
}

func TestStrategies_Load_Dispatch(t *testing.T) {
	f := newFakeFetcher()
	s := feed.NewStrategies(f, discardLogger(), newTestMetrics())

	for _, kind := range []domain.WindowKind{domain.WindowHour, domain.WindowDay, domain.WindowWeek, domain.WindowMonth} {
		_, err := s.Load(context.Background(), domain.FeedWindow(kind))
		require.NoError(t, err)
		assert.Equal(t, 1, f.callCount(string(kind)), kind)
	}

	w, err := domain.ParseCustomWindow("2024-01-01", "2024-01-02")
	require.NoError(t, err)
	_, err = s.Load(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount("query"))

	_, err = s.Load(context.Background(), domain.Window{Kind: "year"})
	require.ErrorIs(t, err, domain.ErrUnsupportedWindow)
}
