package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for connection pools. One Metrics may
// serve several pools; series are labelled by pool name. A nil *Metrics
// records nothing.
type Metrics struct {
	connections  *prometheus.GaugeVec
	waiting      *prometheus.GaugeVec
	peakInUse    *prometheus.GaugeVec
	created      *prometheus.CounterVec
	reaped       *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	waitDuration *prometheus.HistogramVec
}

// NewMetrics registers the pool collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "berth_pool_connections",
				Help: "Current number of pooled connections by state",
			},
			[]string{"pool", "state"},
		),

		waiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "berth_pool_waiting",
				Help: "Current number of callers queued for a connection",
			},
			[]string{"pool"},
		),

		peakInUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "berth_pool_peak_in_use",
				Help: "Highest number of connections on loan at once",
			},
			[]string{"pool"},
		),

		created: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_pool_connections_created_total",
				Help: "Total number of connections opened",
			},
			[]string{"pool"},
		),

		reaped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_pool_connections_reaped_total",
				Help: "Total number of idle connections closed by the reaper",
			},
			[]string{"pool"},
		),

		timeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_pool_timeouts_total",
				Help: "Total number of Get calls that timed out",
			},
			[]string{"pool"},
		),

		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_pool_creation_failures_total",
				Help: "Total number of failed connection attempts",
			},
			[]string{"pool"},
		),

		waitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "berth_pool_wait_duration_seconds",
				Help:    "Time spent acquiring a connection",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to 26s
			},
			[]string{"pool"},
		),
	}
}

func (m *Metrics) update(pool string, s Stats) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(pool, "idle").Set(float64(s.Idle))
	m.connections.WithLabelValues(pool, "in_use").Set(float64(s.InUse))
	m.connections.WithLabelValues(pool, "pending").Set(float64(s.Pending))
	m.waiting.WithLabelValues(pool).Set(float64(s.Waiting))
	m.peakInUse.WithLabelValues(pool).Set(float64(s.PeakInUse))
}

func (m *Metrics) connectionCreated(pool string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(pool).Inc()
}

func (m *Metrics) connectionsReaped(pool string, n int) {
	if m == nil {
		return
	}
	m.reaped.WithLabelValues(pool).Add(float64(n))
}

func (m *Metrics) timedOut(pool string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(pool).Inc()
}

func (m *Metrics) creationFailed(pool string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(pool).Inc()
}

func (m *Metrics) waitObserved(pool string, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(pool).Observe(d.Seconds())
}
