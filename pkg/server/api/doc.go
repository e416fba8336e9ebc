// Package api defines the JSON bodies exchanged by the berth HTTP API and
// the error envelope written for every failed request.
//
// Errors are classified with apperr so that every failure maps to one
// status code and one machine-readable code:
//
//	429 rate_limited          Retry-After set, retryAfter in the body
//	409 slot_full             the requested units do not fit
//	409 reservation_conflict  retries exhausted, Retry-After: 1
//	404 slot_not_found
//	503 pool_exhausted        Retry-After: 1
//	503 shutting_down
//	504 upstream_unavailable
package api
