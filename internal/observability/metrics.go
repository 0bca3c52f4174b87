package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quakewatch"

// Metrics holds the Prometheus counters, histograms, and gauges for the feed service.
type Metrics struct {
	// Upstream USGS metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint={hour,day,week,month,query}, outcome={success,network,http_status,parse,cancelled}
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint
	FeedRecords      prometheus.Histogram

	// Loader metrics.
	CacheLookups   *prometheus.CounterVec // labels: result={hit,miss,stale}
	InflightJoins  prometheus.Counter
	MonthFallbacks prometheus.Counter
	LoaderReady    prometheus.Gauge

	// Session metrics.
	SessionTransitions *prometheus.CounterVec // labels: status={idle,loading,success,error}
	ActiveSessions     prometheus.Gauge

	// Publisher metrics.
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter

	// Place search metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.FeedRecords,
		m.CacheLookups,
		m.InflightJoins,
		m.MonthFallbacks,
		m.LoaderReady,
		m.SessionTransitions,
		m.ActiveSessions,
		m.EventsPublished,
		m.PublishErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      help("USGS requests by endpoint and outcome."),
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      help("USGS request duration in seconds, including body decode."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		FeedRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_records",
			Help:      help("Number of normalized records per successful upstream response."),
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Feed cache lookups by result."),
		}, []string{"result"}),
		InflightJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inflight_joins_total",
			Help:      help("Loads that joined an already running fetch instead of starting one."),
		}),
		MonthFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "month_fallbacks_total",
			Help:      help("Month loads served from the week feed after the month feed failed."),
		}),
		LoaderReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loader_ready",
			Help:      help("1 once a feed load has succeeded, 0 before."),
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      help("Fetch state transitions by target status."),
		}, []string{"status"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      help("Open fetch sessions."),
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      help("Earthquakes published to Kafka."),
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      help("Failed Kafka publish batches."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Place search API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Place search cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Place search API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
