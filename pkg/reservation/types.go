package reservation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"charterhub/berth/pkg/storage"
)

// Default coordinator settings.
const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = 10 * time.Millisecond
)

var (
	// ErrSlotFull is returned when the requested units do not fit in the
	// slot's remaining capacity. No write is attempted.
	ErrSlotFull = errors.New("slot full")

	// ErrReservationConflict is returned when every compare-and-swap attempt
	// lost to a concurrent writer.
	ErrReservationConflict = errors.New("reservation conflict")

	// ErrInvalidRequest is returned for malformed reservation requests.
	ErrInvalidRequest = errors.New("invalid reservation request")
)

// Config controls the optimistic retry loop.
type Config struct {
	// MaxAttempts bounds the read/compare-and-swap cycles per operation.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is multiplied by the attempt number; the result is
	// jittered by up to half in either direction.
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
}

// Validate reports whether the config is usable.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("backoff_base cannot be negative, got %s", c.BackoffBase)
	}
	return nil
}

// Request is one attempt to reserve units of a slot.
type Request struct {
	storage.SlotKey
	Units      int             `json:"units"`
	CustomerID string          `json:"customer_id"`
	Payload    json.RawMessage `json:"booking_payload,omitempty"`
}

func (r *Request) normalize() error {
	if err := r.SlotKey.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if r.Units == 0 {
		r.Units = 1
	}
	if r.Units < 0 {
		return fmt.Errorf("%w: units must be positive, got %d", ErrInvalidRequest, r.Units)
	}
	return nil
}

// SlotFullError carries the slot state observed when a reservation was
// refused. It unwraps to ErrSlotFull.
type SlotFullError struct {
	Slot      storage.SlotKey
	Requested int
	Available int
}

// Error implements the error interface.
func (e *SlotFullError) Error() string {
	return fmt.Sprintf("slot %s full: requested %d, available %d", e.Slot, e.Requested, e.Available)
}

// Unwrap returns ErrSlotFull.
func (e *SlotFullError) Unwrap() error {
	return ErrSlotFull
}

// ConflictError reports how many attempts were made before giving up.
// It unwraps to ErrReservationConflict.
type ConflictError struct {
	Slot     storage.SlotKey
	Attempts int
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s: gave up after %d attempts", e.Slot, e.Attempts)
}

// Unwrap returns ErrReservationConflict.
func (e *ConflictError) Unwrap() error {
	return ErrReservationConflict
}
