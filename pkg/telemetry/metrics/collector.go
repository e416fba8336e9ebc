package metrics

import (
	"strconv"
	"sync"
	"time"

	"charterhub/berth/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DefaultMaxRoutes caps the number of distinct route labels.
const DefaultMaxRoutes = 200

// OtherRoute is the route label used once the cap is reached and for
// requests that matched no route.
const OtherRoute = "other"

// Collector owns the Prometheus registry that every berth component
// registers with, and records HTTP request metrics.
//
// The registry starts with the Go runtime and process collectors. The pool,
// rate limit manager and reservation coordinator register their own
// metrics on Registerer().
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry
	requests *RequestMetrics
	routes   *CardinalityLimiter
}

// NewCollector creates a collector with a fresh registry. If registry is
// nil, a new one is created.
//
// Example:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		requests: NewRequestMetrics(registry),
		routes:   NewCardinalityLimiter(DefaultMaxRoutes),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer returns the registerer components should pass to their
// metric constructors.
func (c *Collector) Registerer() prometheus.Registerer {
	return c.registry
}

// Enabled reports whether metrics are served.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// RecordRequest records a completed HTTP request. Route is the matched
// route pattern; an empty route or one past the cardinality cap is
// recorded as OtherRoute.
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if route == "" || !c.routes.Allow(route) {
		route = OtherRoute
	}
	code := strconv.Itoa(status)
	c.requests.requestsTotal.WithLabelValues(method, route, code).Inc()
	c.requests.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimited records a request rejected by the limiter for endpoint.
func (c *Collector) RecordRateLimited(endpoint string) {
	c.requests.rateLimited.WithLabelValues(endpoint).Inc()
}

// SetBuildInfo publishes the running version.
func (c *Collector) SetBuildInfo(version, commit string) {
	c.requests.buildInfo.Reset()
	c.requests.buildInfo.WithLabelValues(version, commit).Set(1)
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
