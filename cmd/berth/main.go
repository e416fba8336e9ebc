// Berth is the slot reservation service.
//
// It serves an HTTP API for creating capacity-bounded time slots and
// booking units of them, with per-endpoint rate limiting and a pooled
// storage backend (SQLite, MongoDB or in-memory).
//
// Usage:
//
//	# Start the server
//	berth run --config berth.yaml
//
//	# Check a configuration file and print the rate limit table
//	berth validate --config berth.yaml
//
//	# Create a slot directly in storage
//	berth slots set --captain cap-7 --date 2026-11-02 --time 09:00 --capacity 12
//
//	# Fire concurrent reservations at a running server
//	berth bench --target http://localhost:8080 --requests 200 --concurrency 20
//
//	# Show version information
//	berth version
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
