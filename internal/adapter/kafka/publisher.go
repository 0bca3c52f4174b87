// Package kafka mirrors newly observed earthquakes to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/config"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	queueSize      = 16
	seenLimit      = 100_000
	seenRetention  = 35 * 24 * time.Hour
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type batch struct {
	window     string
	records    []domain.Earthquake
	observedAt time.Time
}

// Publisher writes each earthquake the process has not published before to
// the configured topic, keyed by earthquake id. It implements feed.Observer;
// Observe only enqueues, and Run performs the writes.
type Publisher struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	queue   chan batch

	mu   sync.Mutex
	seen map[string]int64 // id -> event time (epoch ms)
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
	}
	return newPublisher(w, logger, metrics, clockwork.NewRealClock())
}

func newPublisher(w messageWriter, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Publisher {
	return &Publisher{
		writer:  w,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		queue:   make(chan batch, queueSize),
		seen:    make(map[string]int64),
	}
}

// Observe queues the records of a load that have not been published yet.
// When the queue is full the batch is dropped and its records stay unseen.
func (p *Publisher) Observe(_ context.Context, w domain.Window, records []domain.Earthquake) {
	fresh := p.markSeen(records)
	if len(fresh) == 0 {
		return
	}

	select {
	case p.queue <- batch{window: w.Key(), records: fresh, observedAt: p.clock.Now()}:
	default:
		p.forget(fresh)
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("publish queue full, dropping batch", "window", w.Key(), "count", len(fresh))
	}
}

// Run drains the queue until ctx is cancelled. Failed writes are retried
// with exponential backoff.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("kafka publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("kafka publisher stopping", "reason", ctx.Err())
			return nil
		case b := <-p.queue:
			p.publish(ctx, b)
		}
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, b batch) {
	msgs := make([]kafkago.Message, 0, len(b.records))
	for _, eq := range b.records {
		msg, err := serializeToMessage(eq, b.window, b.observedAt)
		if err != nil {
			p.logger.Warn("serialize failed, skipping earthquake", "id", eq.ID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	backoff := initialBackoff
	for {
		err := p.writer.WriteMessages(ctx, msgs...)
		if err == nil {
			p.metrics.EventsPublished.Add(float64(len(msgs)))
			p.logger.Debug("published earthquakes", "window", b.window, "count", len(msgs))
			return
		}

		p.metrics.PublishErrors.Inc()
		p.logger.Error("publish batch failed", "error", err, "batch_size", len(msgs))
		if !p.sleep(ctx, backoff) {
			p.forget(b.records)
			return
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// markSeen records the ids of records and returns those not seen before.
func (p *Publisher) markSeen(records []domain.Earthquake) []domain.Earthquake {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.seen) > seenLimit {
		cutoff := p.clock.Now().Add(-seenRetention).UnixMilli()
		for id, t := range p.seen {
			if t < cutoff {
				delete(p.seen, id)
			}
		}
	}

	var fresh []domain.Earthquake
	for _, r := range records {
		if _, ok := p.seen[r.ID]; ok {
			continue
		}
		p.seen[r.ID] = r.Time
		fresh = append(fresh, r)
	}
	return fresh
}

func (p *Publisher) forget(records []domain.Earthquake) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range records {
		delete(p.seen, r.ID)
	}
}

func (p *Publisher) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}

// serializeToMessage marshals an Earthquake into a Kafka message.
func serializeToMessage(eq domain.Earthquake, window string, observedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(eq)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize earthquake: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(eq.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "window", Value: []byte(window)},
			{Key: "event_time", Value: []byte(time.UnixMilli(eq.Time).UTC().Format(time.RFC3339))},
			{Key: "observed_at", Value: []byte(observedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
