package feed_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/feed"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// --- fakes ---

// fakeFetcher stands in for the USGS client. Endpoints are keyed by window
// kind, with "query" for range requests.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	records map[string][]domain.Earthquake
	errs    map[string]error
	ranges  [][2]time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   make(map[string]int),
		records: make(map[string][]domain.Earthquake),
		errs:    make(map[string]error),
	}
}

func (f *fakeFetcher) respond(endpoint string) ([]domain.Earthquake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return f.records[endpoint], nil
}

func (f *fakeFetcher) Fetch(_ context.Context, kind domain.WindowKind) ([]domain.Earthquake, error) {
	return f.respond(string(kind))
}

func (f *fakeFetcher) FetchMonthly(_ context.Context) ([]domain.Earthquake, error) {
	return f.respond(string(domain.WindowMonth))
}

func (f *fakeFetcher) FetchRange(_ context.Context, start, end time.Time) ([]domain.Earthquake, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	f.mu.Unlock()
	return f.respond("query")
}

func (f *fakeFetcher) callCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

// fakeSource implements feed.Source with per-key results and optional gates
// that hold a load until the gate is closed.
type fakeSource struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]feed.Result
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:   make(map[string]int),
		results: make(map[string]feed.Result),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 16),
	}
}

func (f *fakeSource) Load(_ context.Context, w domain.Window) (feed.Result, error) {
	key := w.Key()

	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	f.mu.Unlock()

	select {
	case f.started <- key:
	default:
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key]; err != nil {
		return feed.Result{}, err
	}
	return f.results[key], nil
}

func (f *fakeSource) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeSource) set(key string, r feed.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[key] = r
	f.errs[key] = err
}

func (f *fakeSource) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// recordingObserver captures what the loader reports after each load.
type recordingObserver struct {
	mu    sync.Mutex
	loads map[string]int
}

func (o *recordingObserver) Observe(_ context.Context, w domain.Window, records []domain.Earthquake) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loads == nil {
		o.loads = make(map[string]int)
	}
	o.loads[w.Key()] += len(records)
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func magPtr(v float64) *float64 { return &v }

func quake(id string, mag float64, t time.Time) domain.Earthquake {
	return domain.Earthquake{ID: id, Magnitude: magPtr(mag), Time: t.UnixMilli(), Place: "somewhere, CA"}
}

func recordIDs(records []domain.Earthquake) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
