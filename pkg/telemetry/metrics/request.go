package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestMetrics tracks HTTP request handling.
//
// Metrics:
//   - berth_http_requests_total: requests by method, route and status code
//   - berth_http_request_duration_seconds: request latency by method and route
//   - berth_http_requests_in_flight: requests currently being served
//   - berth_http_rate_limited_total: requests rejected by the limiter
//   - berth_build_info: constant 1 labelled with version and commit
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	rateLimited     *prometheus.CounterVec
	buildInfo       *prometheus.GaugeVec
}

// NewRequestMetrics creates and registers request metrics with reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	factory := promauto.With(reg)
	return &RequestMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "berth_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "berth_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		}),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "berth_http_rate_limited_total",
				Help: "Requests rejected with 429 by rate limit endpoint.",
			},
			[]string{"endpoint"},
		),
		buildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "berth_build_info",
				Help: "Build information for the running berth binary.",
			},
			[]string{"version", "commit"},
		),
	}
}
