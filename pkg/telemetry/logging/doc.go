// Package logging builds the structured logger used across berth.
//
// # Overview
//
// The logging package configures Go's standard log/slog package to provide:
//   - JSON or text output at a configurable level
//   - Request fields (request ID, caller, route, trace and span IDs) taken
//     from the context of each record
//   - Optional redaction of caller identifiers and credentials
//
// Every component accepts a *slog.Logger; there is no package-level logger.
//
// # Usage
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "reservation committed", "booking_id", id)
//
// # Redaction
//
// When redact_pii is enabled:
//
//   - token, secret, password and authorization values become ***
//   - customer_id and caller values keep a short prefix: 10.1.2.3 becomes
//     10.*.*.*, cust-8812 becomes cust***
//   - bearer tokens, JWTs and emails inside strings are masked
package logging
