// Package middleware provides the HTTP middleware used by the berth server.
//
// # Chain
//
// The server applies the middleware from outermost to innermost:
//
//  1. RequestID: assigns X-Request-ID and stores it for logging
//  2. tracing: server span per request
//  3. AccessLog: one structured line per request
//  4. metrics: request counters and latency
//  5. Recovery: turns panics into 500 responses
//
// AccessLog, the metrics middleware and Recovery never replace the request,
// so the route pattern set by http.ServeMux is visible to them after the
// handler returns.
//
// RateLimit is not part of the chain. It wraps each API handler on the mux
// so that it can select the limiter endpoint from the matched route:
//
//	limiter := middleware.NewRateLimit(manager, middleware.NewCallerKeys(cfg.Server.Auth), cfg.RateLimits)
//	mux.Handle("POST /v1/reservations", limiter.Handler(reserve))
//
// # Caller Keys
//
// Callers with a verified bearer token are limited by token subject. With
// mTLS enabled, callers presenting a verified client certificate are
// limited by certificate identity. All other callers are limited by client
// address. A bearer token that fails verification
// is charged to the auth endpoint, so repeated bad tokens from one address
// end in 429 rather than 401.
package middleware
