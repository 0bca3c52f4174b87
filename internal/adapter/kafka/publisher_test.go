package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow   = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	dayWindow = domain.FeedWindow(domain.WindowDay)
)

// --- mocks ---

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	msgs     []kafkago.Message
	attempts int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := make([]string, 0, len(w.msgs))
	for _, m := range w.msgs {
		keys = append(keys, string(m.Key))
	}
	return keys
}

func (w *fakeWriter) attemptCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func testPublisher(w messageWriter) (*Publisher, *clockwork.FakeClock, *observability.Metrics) {
	clock := clockwork.NewFakeClockAt(testNow)
	metrics := observability.NewMetricsForTesting()
	return newPublisher(w, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics, clock), clock, metrics
}

func earthquake(id string) domain.Earthquake {
	mag := 4.2
	return domain.Earthquake{ID: id, Magnitude: &mag, Place: "10km NE of Example, CA", Time: testNow.Add(-time.Hour).UnixMilli()}
}

// --- tests ---

func TestSerializeToMessage(t *testing.T) {
	eq := earthquake("nc1")

	msg, err := serializeToMessage(eq, "day", testNow)
	require.NoError(t, err)

	assert.Equal(t, []byte("nc1"), msg.Key)
	var decoded domain.Earthquake
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, eq, decoded)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "window", msg.Headers[0].Key)
	assert.Equal(t, []byte("day"), msg.Headers[0].Value)
	assert.Equal(t, "event_time", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-04-26T14:10:00Z"), msg.Headers[1].Value)
	assert.Equal(t, "observed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(testNow.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestPublisher_PublishesOnlyUnseen(t *testing.T) {
	w := &fakeWriter{}
	p, _, metrics := testPublisher(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Observe(ctx, dayWindow, []domain.Earthquake{earthquake("a"), earthquake("b")})
	p.Observe(ctx, dayWindow, []domain.Earthquake{earthquake("b"), earthquake("c")})
	p.Observe(ctx, dayWindow, []domain.Earthquake{earthquake("a")})

	require.Eventually(t, func() bool { return len(w.keys()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, w.keys())
	assert.Equal(t, 2, w.attemptCount(), "fully seen batches are not queued")
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.EventsPublished), 0)

	cancel()
	require.NoError(t, <-done)
}

func TestPublisher_RetriesWithBackoff(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p, clock, metrics := testPublisher(w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	p.Observe(ctx, dayWindow, []domain.Earthquake{earthquake("a")})

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(initialBackoff)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * initialBackoff)

	require.Eventually(t, func() bool { return len(w.keys()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, w.attemptCount())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PublishErrors), 0)
}

func TestPublisher_CancelDuringBackoffForgetsRecords(t *testing.T) {
	w := &fakeWriter{failures: 1}
	p, clock, _ := testPublisher(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Observe(ctx, dayWindow, []domain.Earthquake{earthquake("a")})
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()
	require.NoError(t, <-done)

	assert.Len(t, p.markSeen([]domain.Earthquake{earthquake("a")}), 1, "unpublished records can be published again")
}

func TestPublisher_QueueFullDropsBatch(t *testing.T) {
	w := &fakeWriter{}
	p, _, metrics := testPublisher(w)

	for i := range queueSize + 1 {
		p.Observe(context.Background(), dayWindow, []domain.Earthquake{earthquake(string(rune('a' + i)))})
	}

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
	assert.Len(t, p.seen, queueSize)
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p, _, _ := testPublisher(w)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
