// Package metrics provides the Prometheus registry and HTTP metrics for
// berth.
//
// # Overview
//
// Collector owns the registry. Components register their own metrics on
// it through Registerer():
//
//   - berth_pool_*: session pool size, waiters, timeouts (package pool)
//   - berth_ratelimit_*: limiter checks and rejections (package limits)
//   - berth_reservation_*: reservation outcomes and CAS conflicts
//     (package reservation)
//   - berth_http_*: request count, latency, in-flight and 429s (this package)
//
// The Go runtime and process collectors are included.
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	p, err := pool.New(ctx, cfg.Pool, factory, pool.WithMetrics(pool.NewMetrics(collector.Registerer())))
//
//	handler := collector.Middleware(mux)
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// Route labels come from the matched ServeMux pattern, never the raw path.
// At most DefaultMaxRoutes distinct routes are tracked; further routes and
// unmatched requests share the "other" label.
package metrics
