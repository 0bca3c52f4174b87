package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Source loads the records for a window.
type Source interface {
	Load(ctx context.Context, w domain.Window) (Result, error)
}

// Observer is notified after each successful load has been cached.
type Observer interface {
	Observe(ctx context.Context, w domain.Window, records []domain.Earthquake)
}

// Loader serves windows from the cache and coalesces concurrent loads of the
// same key into a single upstream fetch. It is safe for concurrent use and is
// the only writer of its cache.
type Loader struct {
	source    Source
	cache     *Cache
	group     singleflight.Group
	observers []Observer
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewLoader creates a Loader backed by source and cache.
func NewLoader(source Source, cache *Cache, logger *slog.Logger, metrics *observability.Metrics, observers ...Observer) *Loader {
	return &Loader{
		source:    source,
		cache:     cache,
		observers: observers,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one load has succeeded.
func (l *Loader) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("no feed has been loaded yet")
	}
	return nil
}

// Cached returns the entry for key without any side effects, fresh or not.
func (l *Loader) Cached(key string) (Entry, bool) {
	return l.cache.Get(key)
}

// Fresh returns the entry for key when it is within the TTL.
func (l *Loader) Fresh(key string) (Entry, bool) {
	e, ok := l.cache.Get(key)
	if !ok || !l.cache.Fresh(e) {
		return Entry{}, false
	}
	l.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e, true
}

// Load returns the records for w. A fresh cache entry is returned without a
// network call unless force is set. Otherwise the caller joins the in-flight
// fetch for the key, or starts one.
//
// The fetch itself is detached from ctx: a caller that gives up receives
// domain.ErrCancelled (or a network error when its deadline passed) while the fetch completes for everyone else and still
// populates the cache. Failed fetches leave the cache untouched.
func (l *Loader) Load(ctx context.Context, w domain.Window, force bool) (Entry, error) {
	key := w.Key()

	if !force {
		e, ok := l.cache.Get(key)
		switch {
		case ok && l.cache.Fresh(e):
			l.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return e, nil
		case ok:
			l.metrics.CacheLookups.WithLabelValues("stale").Inc()
		default:
			l.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	if ctx.Err() != nil {
		return Entry{}, abandoned(ctx, key)
	}

	var leader bool
	flightCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		leader = true
		return l.fetch(flightCtx, w)
	})

	select {
	case res := <-ch:
		if !leader {
			l.metrics.InflightJoins.Inc()
		}
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	case <-ctx.Done():
		return Entry{}, abandoned(ctx, key)
	}
}

// abandoned classifies a caller that stopped waiting. A deadline is a timeout
// and reported as a network error; anything else is a cancellation.
func abandoned(ctx context.Context, key string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NetworkError("load "+key, ctx.Err())
	}
	return domain.CancelledError("load " + key)
}

func (l *Loader) fetch(ctx context.Context, w domain.Window) (Entry, error) {
	logger := l.logger.With("fetch_id", uuid.NewString(), "window", w.Key())
	logger.Debug("feed fetch started")

	res, err := l.source.Load(ctx, w)
	if err != nil {
		logger.Warn("feed fetch failed", "kind", domain.KindOf(err), "error", err)
		return Entry{}, err
	}

	entry := l.cache.Put(w.Key(), res)
	l.ready.Store(true)
	l.metrics.LoaderReady.Set(1)

	logger.Info("feed loaded", "count", len(res.Records), "degraded", res.Degraded)

	for _, o := range l.observers {
		o.Observe(ctx, w, entry.Records)
	}
	return entry, nil
}
