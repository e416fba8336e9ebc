package reservation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the coordinator.
// A nil *Metrics records nothing.
type Metrics struct {
	outcomes  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the reservation collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_reservation_operations_total",
				Help: "Total number of reservation operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_reservation_cas_conflicts_total",
				Help: "Total number of compare-and-swap attempts lost to a concurrent writer",
			},
			[]string{"operation"},
		),

		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "berth_reservation_duration_seconds",
				Help:    "Duration of reservation operations including retries",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 500µs to 4s
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) observe(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) conflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}
