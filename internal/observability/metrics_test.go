package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()

	m.UpstreamRequests.WithLabelValues("day", "success").Inc()
	m.UpstreamRequests.WithLabelValues("day", "success").Inc()
	m.CacheLookups.WithLabelValues("hit").Inc()
	m.MonthFallbacks.Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("day", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MonthFallbacks), 0)

	// A second set must not collide with the first.
	other := NewMetricsForTesting()
	assert.InDelta(t, 0, testutil.ToFloat64(other.MonthFallbacks), 0)
}
