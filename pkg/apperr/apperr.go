// Package apperr maps errors from the admission and reservation core to
// caller-facing categories and HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"net/http"
	"time"

	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/storage"
)

// Kind is a machine-readable error category. It doubles as the error code
// in HTTP error bodies.
type Kind string

// Error kinds.
const (
	KindNone               Kind = ""
	KindInvalidRequest     Kind = "invalid_request"
	KindNotFound           Kind = "not_found"
	KindSlotNotFound       Kind = "slot_not_found"
	KindBookingNotFound    Kind = "booking_not_found"
	KindRateLimited        Kind = "rate_limited"
	KindSlotFull           Kind = "slot_full"
	KindConflict           Kind = "reservation_conflict"
	KindCapacityBelow      Kind = "capacity_below_booked"
	KindPoolExhausted      Kind = "pool_exhausted"
	KindShuttingDown       Kind = "shutting_down"
	KindBackendUnavailable Kind = "upstream_unavailable"
	KindCancelled          Kind = "request_cancelled"
	KindInternal           Kind = "internal_error"
)

// StatusClientClosedRequest is reported when the caller went away before
// the operation finished.
const StatusClientClosedRequest = 499

// Classification describes how a caller should treat an error.
type Classification struct {
	Kind       Kind
	Retryable  bool
	RetryAfter time.Duration
	HTTPStatus int
}

// Classify maps err to its Classification. A nil error classifies as
// KindNone with status 200. Unknown errors are internal and not retryable.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindNone, HTTPStatus: http.StatusOK}
	}

	var rle *limits.RateLimitError
	if errors.As(err, &rle) {
		return Classification{
			Kind:       KindRateLimited,
			Retryable:  true,
			RetryAfter: rle.RetryAfter,
			HTTPStatus: http.StatusTooManyRequests,
		}
	}

	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return Classification{Kind: KindRateLimited, Retryable: true, RetryAfter: time.Second, HTTPStatus: http.StatusTooManyRequests}

	case errors.Is(err, reservation.ErrSlotFull):
		return Classification{Kind: KindSlotFull, HTTPStatus: http.StatusConflict}

	case errors.Is(err, reservation.ErrReservationConflict):
		return Classification{Kind: KindConflict, Retryable: true, RetryAfter: time.Second, HTTPStatus: http.StatusConflict}

	case errors.Is(err, storage.ErrCapacityBelowBooked):
		return Classification{Kind: KindCapacityBelow, HTTPStatus: http.StatusConflict}

	case errors.Is(err, storage.ErrSlotNotFound):
		return Classification{Kind: KindSlotNotFound, HTTPStatus: http.StatusNotFound}

	case errors.Is(err, storage.ErrBookingNotFound):
		return Classification{Kind: KindBookingNotFound, HTTPStatus: http.StatusNotFound}

	case errors.Is(err, limits.ErrUnknownEndpoint):
		return Classification{Kind: KindNotFound, HTTPStatus: http.StatusNotFound}

	case errors.Is(err, reservation.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidSlot),
		errors.Is(err, limits.ErrConfigInvalid):
		return Classification{Kind: KindInvalidRequest, HTTPStatus: http.StatusBadRequest}

	case errors.Is(err, pool.ErrPoolTimeout):
		return Classification{Kind: KindPoolExhausted, Retryable: true, RetryAfter: time.Second, HTTPStatus: http.StatusServiceUnavailable}

	case errors.Is(err, pool.ErrPoolClosing):
		return Classification{Kind: KindShuttingDown, HTTPStatus: http.StatusServiceUnavailable}

	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Kind: KindBackendUnavailable, Retryable: true, HTTPStatus: http.StatusGatewayTimeout}

	case errors.Is(err, context.Canceled):
		return Classification{Kind: KindCancelled, HTTPStatus: StatusClientClosedRequest}

	case errors.Is(err, pool.ErrBackendUnavailable):
		return Classification{Kind: KindBackendUnavailable, Retryable: !pool.IsPermanent(err), HTTPStatus: http.StatusGatewayTimeout}
	}

	var se *storage.Error
	if errors.As(err, &se) {
		return Classification{Kind: KindBackendUnavailable, Retryable: true, HTTPStatus: http.StatusGatewayTimeout}
	}

	return Classification{Kind: KindInternal, HTTPStatus: http.StatusInternalServerError}
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	return Classify(err).Retryable
}

// Message returns the caller-facing message for err. Internal errors are
// not exposed.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var rle *limits.RateLimitError
	if errors.As(err, &rle) && rle.Message != "" {
		return rle.Message
	}

	switch Classify(err).Kind {
	case KindInternal:
		return "internal server error"
	case KindBackendUnavailable:
		return "backend temporarily unavailable"
	case KindPoolExhausted:
		return "server busy, try again shortly"
	case KindShuttingDown:
		return "server is shutting down"
	default:
		return err.Error()
	}
}
