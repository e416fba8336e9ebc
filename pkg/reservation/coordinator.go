package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"charterhub/berth/pkg/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrSlot     = "berth.slot"
	AttrUnits    = "berth.units"
	AttrAttempts = "berth.attempts"
	AttrBooking  = "berth.booking_id"
	AttrOutcome  = "berth.outcome"
)

// Tracer starts spans. Both an OpenTelemetry trace.Tracer and
// *tracing.Tracer satisfy it.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// Coordinator admits or rejects reservations against slot capacity.
//
// Every attempt reads the slot and then commits with a compare-and-swap on
// the booked count it read, inside one pooled session. A lost swap is
// retried after a jittered backoff, at most MaxAttempts times. No lock is
// held across storage round-trips and the session is returned to the pool
// while backing off.
type Coordinator struct {
	exec    storage.Executor
	config  Config
	logger  *slog.Logger
	metrics *Metrics
	tracer  Tracer
	now     func() time.Time
	newID   func() string
	jitter  func(n time.Duration) time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// WithTracer sets the span tracer. The global OpenTelemetry tracer is used
// otherwise.
func WithTracer(tracer Tracer) Option {
	return func(c *Coordinator) { c.tracer = tracer }
}

// WithClock overrides the time source used for booking timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator that runs all storage I/O through exec.
func New(exec storage.Executor, config Config, opts ...Option) (*Coordinator, error) {
	if exec == nil {
		return nil, errors.New("reservation executor cannot be nil")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reservation config: %w", err)
	}

	c := &Coordinator{
		exec:   exec,
		config: config,
		now:    time.Now,
		newID:  uuid.NewString,
		jitter: func(n time.Duration) time.Duration { return rand.N(n) },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "reservation")
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("charterhub/berth/reservation")
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.config
}

// Reserve books req.Units of the slot and returns the committed booking.
//
// It fails with a *SlotFullError when the units do not fit, with a
// *ConflictError when every attempt lost its compare-and-swap, and with
// storage.ErrSlotNotFound for an unknown slot. Pool and backend errors are
// returned unchanged.
func (c *Coordinator) Reserve(ctx context.Context, req Request) (*storage.Booking, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "reservation.reserve", trace.WithAttributes(
		attribute.String(AttrSlot, req.SlotKey.String()),
		attribute.Int(AttrUnits, req.Units),
	))
	defer span.End()

	booking, attempts, err := c.reserve(ctx, req)

	outcome := outcomeOf(err)
	span.SetAttributes(
		attribute.Int(AttrAttempts, attempts),
		attribute.String(AttrOutcome, outcome),
	)
	c.metrics.observe("reserve", outcome, time.Since(start))

	if err != nil {
		c.finishSpan(span, err)
		c.logger.Debug("reservation rejected",
			"slot", req.SlotKey.String(),
			"units", req.Units,
			"attempts", attempts,
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String(AttrBooking, booking.ID))
	span.SetStatus(codes.Ok, "")
	c.logger.Info("reservation committed",
		"booking_id", booking.ID,
		"slot", req.SlotKey.String(),
		"units", req.Units,
		"attempts", attempts,
	)
	return booking, nil
}

func (c *Coordinator) reserve(ctx context.Context, req Request) (*storage.Booking, int, error) {
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		var committed *storage.Booking
		err := c.exec.Execute(ctx, func(ctx context.Context, s storage.Session) error {
			slot, err := s.GetSlot(ctx, req.SlotKey)
			if err != nil {
				return err
			}
			if slot.BookedCount+req.Units > slot.Capacity {
				return &SlotFullError{
					Slot:      req.SlotKey,
					Requested: req.Units,
					Available: slot.Available(),
				}
			}

			booking := &storage.Booking{
				ID:         c.newID(),
				SlotKey:    req.SlotKey,
				Units:      req.Units,
				CustomerID: req.CustomerID,
				Payload:    req.Payload,
				CreatedAt:  c.now().UTC(),
			}
			ok, err := s.CommitReservation(ctx, slot.BookedCount, booking)
			if err != nil {
				return err
			}
			if ok {
				committed = booking
			}
			return nil
		})
		if err != nil {
			return nil, attempt, err
		}
		if committed != nil {
			return committed, attempt, nil
		}

		c.metrics.conflict("reserve")
		if attempt < c.config.MaxAttempts {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, attempt, err
			}
		}
	}
	return nil, c.config.MaxAttempts, &ConflictError{Slot: req.SlotKey, Attempts: c.config.MaxAttempts}
}

// Cancel deletes a booking and returns its units to the slot, using the same
// compare-and-swap loop as Reserve. It returns the cancelled booking.
func (c *Coordinator) Cancel(ctx context.Context, bookingID string) (*storage.Booking, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrInvalidRequest)
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "reservation.cancel", trace.WithAttributes(
		attribute.String(AttrBooking, bookingID),
	))
	defer span.End()

	booking, attempts, err := c.cancel(ctx, bookingID)

	outcome := outcomeOf(err)
	span.SetAttributes(
		attribute.Int(AttrAttempts, attempts),
		attribute.String(AttrOutcome, outcome),
	)
	c.metrics.observe("cancel", outcome, time.Since(start))

	if err != nil {
		c.finishSpan(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	c.logger.Info("reservation cancelled",
		"booking_id", bookingID,
		"slot", booking.SlotKey.String(),
		"units", booking.Units,
	)
	return booking, nil
}

func (c *Coordinator) cancel(ctx context.Context, bookingID string) (*storage.Booking, int, error) {
	var (
		slot      storage.SlotKey
		cancelled *storage.Booking
	)
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		err := c.exec.Execute(ctx, func(ctx context.Context, s storage.Session) error {
			booking, err := s.GetBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			slot = booking.SlotKey

			current, err := s.GetSlot(ctx, booking.SlotKey)
			if err != nil {
				return err
			}
			ok, err := s.CancelReservation(ctx, current.BookedCount, booking)
			if err != nil {
				return err
			}
			if ok {
				cancelled = booking
			}
			return nil
		})
		if err != nil {
			return nil, attempt, err
		}
		if cancelled != nil {
			return cancelled, attempt, nil
		}

		c.metrics.conflict("cancel")
		if attempt < c.config.MaxAttempts {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, attempt, err
			}
		}
	}
	return nil, c.config.MaxAttempts, &ConflictError{Slot: slot, Attempts: c.config.MaxAttempts}
}

// backoff sleeps BackoffBase*attempt, jittered into [d/2, 3d/2).
func (c *Coordinator) backoff(ctx context.Context, attempt int) error {
	d := c.config.BackoffBase * time.Duration(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	d = d/2 + c.jitter(d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) finishSpan(span trace.Span, err error) {
	// A full slot is a normal business outcome, not a failed operation.
	if errors.Is(err, ErrSlotFull) {
		span.SetStatus(codes.Unset, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrReservationConflict):
		return "conflict"
	case errors.Is(err, storage.ErrSlotNotFound), errors.Is(err, storage.ErrBookingNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
