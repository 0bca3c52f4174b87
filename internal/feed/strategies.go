package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// Fetcher is the upstream feed the strategies compose.
type Fetcher interface {
	Fetch(ctx context.Context, kind domain.WindowKind) ([]domain.Earthquake, error)
	FetchMonthly(ctx context.Context) ([]domain.Earthquake, error)
	FetchRange(ctx context.Context, start, end time.Time) ([]domain.Earthquake, error)
}

// Result is a loaded record list. Degraded is set when the records came from
// a fallback source, with Reason describing why.
type Result struct {
	Records  []domain.Earthquake
	Degraded bool
	Reason   string
}

// Strategies resolves every window kind to a record list, composing the month
// and custom windows the summary feeds do not serve directly.
type Strategies struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStrategies creates the window strategies on top of f.
func NewStrategies(f Fetcher, logger *slog.Logger, metrics *observability.Metrics) *Strategies {
	return &Strategies{fetcher: f, logger: logger, metrics: metrics}
}

// Load dispatches w to the matching strategy.
func (s *Strategies) Load(ctx context.Context, w domain.Window) (Result, error) {
	switch w.Kind {
	case domain.WindowHour, domain.WindowDay, domain.WindowWeek:
		records, err := s.fetcher.Fetch(ctx, w.Kind)
		if err != nil {
			return Result{}, err
		}
		return Result{Records: records}, nil
	case domain.WindowMonth:
		return s.Month(ctx)
	case domain.WindowCustom:
		return s.Custom(ctx, w.Start, w.End)
	default:
		return Result{}, fmt.Errorf("load %q: %w", w.Kind, domain.ErrUnsupportedWindow)
	}
}

// Month loads the 30 day feed. Any failure other than cancellation is
// recovered by serving the week feed instead, tagged as degraded. The month
// feed is not retried before falling back.
func (s *Strategies) Month(ctx context.Context) (Result, error) {
	records, err := s.fetcher.FetchMonthly(ctx)
	if err == nil {
		return Result{Records: records}, nil
	}
	if domain.IsCancelled(err) {
		return Result{}, err
	}

	s.metrics.MonthFallbacks.Inc()
	s.logger.Warn("month feed failed, falling back to week feed", "kind", domain.KindOf(err), "error", err)

	week, werr := s.fetcher.Fetch(ctx, domain.WindowWeek)
	if werr != nil {
		if domain.IsCancelled(werr) {
			return Result{}, werr
		}
		s.logger.Error("month fallback failed", "month_error", err, "week_error", werr)
		return Result{}, fmt.Errorf("month fallback: %w", werr)
	}

	s.logger.Info("serving week feed for month window", "count", len(week))
	return Result{
		Records:  week,
		Degraded: true,
		Reason:   "monthly feed unavailable, showing the past 7 days (" + err.Error() + ")",
	}, nil
}

// Custom loads events between the start and end dates, both inclusive through
// the end of the last day. It has no fallback.
func (s *Strategies) Custom(ctx context.Context, start, end time.Time) (Result, error) {
	w, err := domain.CustomWindow(start, end)
	if err != nil {
		return Result{}, err
	}

	records, err := s.fetcher.FetchRange(ctx, w.Start, w.End)
	if err != nil {
		return Result{}, err
	}

	lo, hi := w.Bounds()
	return Result{Records: domain.FilterByTimeWindow(records, lo, hi)}, nil
}
