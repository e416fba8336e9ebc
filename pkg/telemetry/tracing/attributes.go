package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on HTTP spans. Standard keys follow the OpenTelemetry
// HTTP semantic conventions; berth-specific keys use the "berth." prefix.
const (
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.response.status_code"

	AttrRequestID          = "berth.request_id"
	AttrRateLimitEndpoint  = "berth.ratelimit.endpoint"
	AttrRateLimitLimit     = "berth.ratelimit.limit"
	AttrRateLimitRemaining = "berth.ratelimit.remaining"
	AttrRateLimited        = "berth.ratelimit.limited"
	AttrErrorKind          = "berth.error.kind"
	AttrErrorMessage       = "error.message"
)

// SetRequestAttributes sets the request ID and route on a span.
func SetRequestAttributes(span trace.Span, requestID, route string) {
	attrs := make([]attribute.KeyValue, 0, 2)
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if route != "" {
		attrs = append(attrs, attribute.String(AttrHTTPRoute, route))
	}
	span.SetAttributes(attrs...)
}

// SetRateLimitAttributes records a limiter decision on a span. A negative
// limit means the endpoint is unlimited and is not recorded.
func SetRateLimitAttributes(span trace.Span, endpoint string, limit, remaining int, limited bool) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRateLimitEndpoint, endpoint),
		attribute.Bool(AttrRateLimited, limited),
	}
	if limit >= 0 {
		attrs = append(attrs,
			attribute.Int(AttrRateLimitLimit, limit),
			attribute.Int(AttrRateLimitRemaining, remaining),
		)
	}
	span.SetAttributes(attrs...)
}

// SetErrorKind records the classified error kind on a span.
func SetErrorKind(span trace.Span, kind string) {
	if kind == "" {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
}
