// Package health provides liveness and readiness probes for berth.
//
// # Endpoints
//
//   - /health: liveness, answers 200 while the process runs
//   - /ready: readiness, runs component checks and answers 503 when any
//     fails or the server is draining
//   - /version: build information
//
// The probe paths come from telemetry.health in the configuration.
//
// # Component Checks
//
// The server registers:
//
//   - storage: borrows a session from the pool and pings the backend
//   - pool: fails when every connection is lent or too many callers wait
//   - ratelimit_store: pings Redis when the shared store is configured
//
// Checks run concurrently, each bounded by telemetry.health.check_timeout.
//
// # Draining
//
// During graceful shutdown the server calls SetDraining(true) before it
// stops accepting connections, so readiness fails immediately while
// in-flight reservations complete.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("storage", health.StorageCheck(sessions))
//	checker.RegisterCheck("pool", sessions.Check)
//	health.Register(mux, checker, cfg.Telemetry.Health, info, 10)
package health
