package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the limits package.
// A nil *Metrics records nothing.
type Metrics struct {
	checks        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
}

// NewMetrics registers the limits collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_ratelimit_checks_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"endpoint", "operation", "result"},
		),

		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_ratelimit_rejections_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"endpoint"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "berth_ratelimit_check_duration_seconds",
				Help:    "Duration of rate limit decisions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) recordCheck(endpoint, operation string, allowed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
		m.rejections.WithLabelValues(endpoint).Inc()
	}
	m.checks.WithLabelValues(endpoint, operation, result).Inc()
	m.checkDuration.WithLabelValues(operation).Observe(d.Seconds())
}
