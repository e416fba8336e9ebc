package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      Kind
		wantStatus    int
		wantRetryable bool
	}{
		{"nil", nil, KindNone, http.StatusOK, false},
		{"slot full", &reservation.SlotFullError{Requested: 1}, KindSlotFull, http.StatusConflict, false},
		{"conflict", &reservation.ConflictError{Attempts: 5}, KindConflict, http.StatusConflict, true},
		{"slot not found", fmt.Errorf("reserve: %w", storage.ErrSlotNotFound), KindSlotNotFound, http.StatusNotFound, false},
		{"booking not found", storage.ErrBookingNotFound, KindBookingNotFound, http.StatusNotFound, false},
		{"invalid request", reservation.ErrInvalidRequest, KindInvalidRequest, http.StatusBadRequest, false},
		{"invalid slot", storage.ErrInvalidSlot, KindInvalidRequest, http.StatusBadRequest, false},
		{"capacity below booked", storage.ErrCapacityBelowBooked, KindCapacityBelow, http.StatusConflict, false},
		{"pool timeout", pool.ErrPoolTimeout, KindPoolExhausted, http.StatusServiceUnavailable, true},
		{"deadline in pool queue", errors.Join(pool.ErrPoolTimeout, context.DeadlineExceeded), KindPoolExhausted, http.StatusServiceUnavailable, true},
		{"pool closing", pool.ErrPoolClosing, KindShuttingDown, http.StatusServiceUnavailable, false},
		{"backend", &pool.BackendError{Op: "open", Err: errors.New("refused")}, KindBackendUnavailable, http.StatusGatewayTimeout, true},
		{"permanent backend", pool.Permanent(&pool.BackendError{Op: "open", Err: errors.New("auth")}), KindBackendUnavailable, http.StatusGatewayTimeout, false},
		{"storage error", storage.NewError("sqlite", "commit", errors.New("disk I/O")), KindBackendUnavailable, http.StatusGatewayTimeout, true},
		{"deadline", context.DeadlineExceeded, KindBackendUnavailable, http.StatusGatewayTimeout, true},
		{"cancelled", context.Canceled, KindCancelled, StatusClientClosedRequest, false},
		{"bare rate limited", ratelimit.ErrRateLimited, KindRateLimited, http.StatusTooManyRequests, true},
		{"unknown", errors.New("boom"), KindInternal, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", got.HTTPStatus, tt.wantStatus)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestClassify_RateLimitErrorCarriesRetryAfter(t *testing.T) {
	err := limits.Reject("auth", "10.0.0.1", "Too many login attempts", ratelimit.Result{
		Limit:      5,
		RetryAfter: 42 * time.Second,
	})

	got := Classify(fmt.Errorf("middleware: %w", err))
	if got.Kind != KindRateLimited || got.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("Unexpected classification: %+v", got)
	}
	if got.RetryAfter != 42*time.Second {
		t.Errorf("Expected RetryAfter 42s, got %v", got.RetryAfter)
	}
	if msg := Message(err); msg != "Too many login attempts" {
		t.Errorf("Expected limiter message, got %q", msg)
	}
}

func TestClassify_ConflictRetryAfter(t *testing.T) {
	got := Classify(reservation.ErrReservationConflict)
	if got.RetryAfter != time.Second {
		t.Errorf("Expected RetryAfter 1s for conflicts, got %v", got.RetryAfter)
	}
}

func TestMessage_HidesInternals(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("nil pointer in handler"), "internal server error"},
		{storage.NewError("mongo", "get_slot", errors.New("connection reset by 10.1.2.3")), "backend temporarily unavailable"},
		{pool.ErrPoolTimeout, "server busy, try again shortly"},
		{reservation.ErrSlotFull, "slot full"},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
