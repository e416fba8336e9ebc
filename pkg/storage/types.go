package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the format of TimeSlot dates. Dates in this layout sort
// lexically, which retention relies on.
const DateLayout = "2006-01-02"

var timeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Error types returned by every Store.
var (
	// ErrSlotNotFound is returned when no slot matches a SlotKey.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrBookingNotFound is returned when no booking matches an ID.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidSlot is returned for a malformed SlotKey or capacity.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrCapacityBelowBooked is returned when an upsert would shrink a slot
	// below the units already booked.
	ErrCapacityBelowBooked = errors.New("capacity below booked count")
)

// SlotKey identifies a bookable time slot.
type SlotKey struct {
	CaptainID string `json:"captain_id"`
	Date      string `json:"date"`
	Time      string `json:"time_slot"`
}

// String returns the canonical key form, captain/date/time.
func (k SlotKey) String() string {
	return k.CaptainID + "/" + k.Date + "/" + k.Time
}

// Validate reports whether k is well formed.
func (k SlotKey) Validate() error {
	if k.CaptainID == "" {
		return fmt.Errorf("%w: captain_id is required", ErrInvalidSlot)
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidSlot, k.Date)
	}
	if !timeOfDay.MatchString(k.Time) {
		return fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSlot, k.Time)
	}
	return nil
}

// TimeSlot is a capacity-bounded bookable unit.
// Invariant: 0 <= BookedCount <= Capacity.
type TimeSlot struct {
	SlotKey
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Available returns the units still free.
func (s TimeSlot) Available() int {
	return s.Capacity - s.BookedCount
}

// Booking is a committed reservation against a slot.
type Booking struct {
	ID         string          `json:"id"`
	SlotKey
	Units      int             `json:"units"`
	CustomerID string          `json:"customer_id"`
	Payload    json.RawMessage `json:"booking_payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Session is one backend connection. Sessions are not safe for concurrent
// use; the pool lends each to a single caller at a time.
type Session interface {
	// GetSlot reads a slot. Returns ErrSlotNotFound if absent.
	GetSlot(ctx context.Context, key SlotKey) (*TimeSlot, error)

	// UpsertSlot creates a slot or changes its capacity. Returns
	// ErrCapacityBelowBooked if capacity would drop below BookedCount.
	UpsertSlot(ctx context.Context, key SlotKey, capacity int) (*TimeSlot, error)

	// CommitReservation adds b.Units to the slot's booked count only if
	// the count still equals expected and stays within capacity, and
	// records b in the same step. It reports false, with nothing written,
	// when the condition no longer holds.
	CommitReservation(ctx context.Context, expected int, b *Booking) (bool, error)

	// GetBooking reads a booking. Returns ErrBookingNotFound if absent.
	GetBooking(ctx context.Context, id string) (*Booking, error)

	// CancelReservation removes b and subtracts its units from the slot
	// only if the booked count still equals expected. It reports false,
	// with nothing written, when the condition no longer holds. Returns
	// ErrBookingNotFound if b was already removed. Backends without
	// multi-document transactions claim b first and then retry the
	// subtraction against the current count; they never report false.
	CancelReservation(ctx context.Context, expected int, b *Booking) (bool, error)

	// PruneBefore deletes slots dated before date, with their bookings,
	// and returns the number of slots removed.
	PruneBefore(ctx context.Context, date string) (int, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close returns the session's resources to the backend.
	Close() error
}

// Store opens Sessions against one backend.
type Store interface {
	// Open creates a new Session. It is used as the pool factory.
	Open(ctx context.Context) (Session, error)

	// Name identifies the backend in logs and errors.
	Name() string

	// Close releases the backend.
	Close() error
}

// Executor runs fn with a borrowed Session. *pool.Pool[Session] is the
// production Executor.
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context, s Session) error) error

	// ExecuteWithRetry runs fn up to attempts times, or the executor's
	// default when attempts <= 0. fn must be idempotent.
	ExecuteWithRetry(ctx context.Context, fn func(ctx context.Context, s Session) error, attempts int) error
}

// Error represents a failure reported by a storage backend.
type Error struct {
	Backend string // Storage backend ("sqlite", "mongo", ...)
	Op      string // Operation that failed ("get_slot", "commit", ...)
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(backend, op string, err error) *Error {
	return &Error{Backend: backend, Op: op, Err: err}
}
