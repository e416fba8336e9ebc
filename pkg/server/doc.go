// Package server provides the berth HTTP API and the process that hosts it.
//
// App builds the component graph from a *config.Config: the storage backend
// and its session pool, the rate limit manager and stores, the reservation
// coordinator, telemetry, the retention scheduler and the Server. Server
// routes requests to those components and manages the HTTP lifecycle.
//
// # Basic Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides("berth.yaml")
//	if err != nil {
//	    return err
//	}
//	app, err := server.NewApp(ctx, cfg, "berth.yaml", server.BuildInfo{Version: version}, logger)
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//
//	return app.Run(ctx) // blocks until ctx is cancelled
//
// # Routes
//
//	POST   /v1/slots                           create a slot or change its capacity
//	GET    /v1/slots/{captain}/{date}/{time}   read a slot
//	POST   /v1/reservations                    book units of a slot
//	GET    /v1/reservations/{id}               read a booking
//	DELETE /v1/reservations/{id}               cancel a booking
//	GET    /health, /ready, /version           probes
//	GET    /metrics                            Prometheus metrics
//
// Errors are JSON bodies of the form {"error", "code", "retryAfter",
// "requestId"}; see package api.
//
// # Middleware
//
// Requests pass through, outermost first: request ID, tracing, access
// logging, metrics and panic recovery, then the mux. The rate limiter wraps
// each API route inside the mux so it can select the limiter by route
// pattern. Rejected requests receive 429 with Retry-After and the
// X-RateLimit-* headers.
//
// # TLS
//
// With server.tls.enabled the listener is wrapped in TLS. The key pair is
// reloaded from disk when it changes. With server.tls.mtls.enabled client
// certificates are verified and a verified certificate identity becomes the
// caller's rate limit key unless a valid bearer token is also presented.
//
// # Shutdown
//
// Cancelling the context passed to Run marks readiness as draining, stops
// accepting connections and waits up to server.shutdown_timeout for
// in-flight requests. App.Close then releases the pool, the storage
// backend, the Redis client and the tracer.
package server
