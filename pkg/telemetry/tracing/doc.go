// Package tracing provides OpenTelemetry distributed tracing for berth.
//
// # Overview
//
// The package builds the tracer provider and OTLP gRPC exporter from
// configuration, extracts W3C Trace Context from incoming requests, and
// wraps each HTTP request in a server span named after its route pattern.
//
// The reservation coordinator starts its own spans through otel.Tracer;
// when tracing is enabled New installs the provider globally, so those
// spans become children of the request span.
//
// # Sampling Strategies
//
//   - always: sample all traces (development)
//   - never: sample no traces
//   - ratio: sample a fraction of traces by trace ID
//   - parent_ratio: honour the caller's decision, otherwise sample by ratio
//
// # Usage
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	handler = tracer.Middleware(mux)
//
// # Span Attributes
//
// HTTP spans carry http.request.method, http.route and
// http.response.status_code. The rate limit middleware adds
// berth.ratelimit.endpoint, berth.ratelimit.limit,
// berth.ratelimit.remaining and berth.ratelimit.limited.
package tracing
