// Package storage persists time slots and bookings.
//
// A Store opens Sessions; the connection pool lends one Session at a time
// to the reservation coordinator. Every backend implements the same
// compare-and-swap contract: CommitReservation only applies when the slot's
// booked count still equals the value the caller read, so concurrent
// reservations can never push a slot over capacity.
//
// # Backends
//
//   - SQLiteStore: default. Driver "sqlite" (modernc.org/sqlite) or
//     "sqlite3" (github.com/mattn/go-sqlite3). The counter update and the
//     booking insert share one transaction.
//   - MongoStore: filtered UpdateOne on the slot document, with a
//     compensating decrement if the booking insert fails.
//   - MemoryStore: maps behind a mutex, for tests.
//
// # Retention
//
// The retention sub-package prunes slots dated before a cutoff on a cron
// schedule.
package storage
