// Package telemetry groups the observability packages used by berth.
//
// # Components
//
//   - logging: slog handlers with request context and PII redaction
//   - metrics: Prometheus registry, HTTP metrics and the /metrics handler
//   - tracing: OpenTelemetry tracer provider and HTTP span middleware
//   - health: liveness and readiness probes
//
// Each component is constructed from its section of config.TelemetryConfig
// and handed to the server explicitly. The pool, rate limiter and
// reservation packages register their own collectors on the metrics
// registry.
package telemetry
