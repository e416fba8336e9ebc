package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"charterhub/berth/pkg/apperr"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/server/api"
	"charterhub/berth/pkg/storage"
)

// decodeJSON reads a JSON request body bounded by server.max_body_bytes.
// It writes the error response itself and reports whether decoding
// succeeded.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.WriteProblem(w, r, http.StatusRequestEntityTooLarge, api.CodeRequestTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		api.WriteProblem(w, r, http.StatusBadRequest, api.CodeInvalidJSON,
			fmt.Sprintf("request body is not valid JSON: %v", err))
		return false
	}
	return true
}

func slotKeyFromPath(r *http.Request) storage.SlotKey {
	return storage.SlotKey{
		CaptainID: r.PathValue("captain"),
		Date:      r.PathValue("date"),
		Time:      r.PathValue("time"),
	}
}

// handleUpsertSlot creates a slot or changes its capacity.
func (s *Server) handleUpsertSlot(w http.ResponseWriter, r *http.Request) {
	var req api.SlotRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	key := req.Key()
	if err := key.Validate(); err != nil {
		api.WriteError(w, r, err)
		return
	}
	if req.Capacity < 0 {
		api.WriteError(w, r, fmt.Errorf("%w: capacity must be non-negative, got %d", storage.ErrInvalidSlot, req.Capacity))
		return
	}

	var slot *storage.TimeSlot
	err := s.sessions.Execute(r.Context(), func(ctx context.Context, sess storage.Session) error {
		var err error
		slot, err = sess.UpsertSlot(ctx, key, req.Capacity)
		return err
	})
	if err != nil {
		s.logError(r, "slot upsert failed", err, "slot", key.String())
		api.WriteError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.NewSlotResponse(slot))
}

// handleGetSlot reads a slot and its remaining capacity.
func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	key := slotKeyFromPath(r)
	if err := key.Validate(); err != nil {
		api.WriteError(w, r, err)
		return
	}

	var slot *storage.TimeSlot
	err := s.read(r.Context(), func(ctx context.Context, sess storage.Session) error {
		var err error
		slot, err = sess.GetSlot(ctx, key)
		return err
	})
	if err != nil {
		s.logError(r, "slot read failed", err, "slot", key.String())
		api.WriteError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.NewSlotResponse(slot))
}

// handleReserve books units of a slot.
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req api.ReservationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	booking, err := s.coordinator.Reserve(r.Context(), reservation.Request{
		SlotKey: storage.SlotKey{
			CaptainID: req.CaptainID,
			Date:      req.Date,
			Time:      req.TimeSlot,
		},
		Units:      req.Units,
		CustomerID: req.CustomerID,
		Payload:    req.Payload,
	})
	if err != nil {
		s.logError(r, "reservation failed", err,
			"slot", storage.SlotKey{CaptainID: req.CaptainID, Date: req.Date, Time: req.TimeSlot}.String())
		api.WriteError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/reservations/"+booking.ID)
	api.WriteJSON(w, http.StatusCreated, api.NewBookingResponse(booking))
}

// handleGetReservation reads a booking.
func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var booking *storage.Booking
	err := s.read(r.Context(), func(ctx context.Context, sess storage.Session) error {
		var err error
		booking, err = sess.GetBooking(ctx, id)
		return err
	})
	if err != nil {
		s.logError(r, "reservation read failed", err, "booking_id", id)
		api.WriteError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.NewBookingResponse(booking))
}

// handleCancel cancels a booking and restores its units to the slot.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	booking, err := s.coordinator.Cancel(r.Context(), id)
	if err != nil {
		s.logError(r, "cancellation failed", err, "booking_id", id)
		api.WriteError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.NewBookingResponse(booking))
}

// read runs an idempotent lookup with the pool's retry policy. Missing
// records and invalid keys are answers and are returned on the first try.
func (s *Server) read(ctx context.Context, fn func(ctx context.Context, sess storage.Session) error) error {
	return s.sessions.ExecuteWithRetry(ctx, func(ctx context.Context, sess storage.Session) error {
		err := fn(ctx, sess)
		if errors.Is(err, storage.ErrSlotNotFound) ||
			errors.Is(err, storage.ErrBookingNotFound) ||
			errors.Is(err, storage.ErrInvalidSlot) {
			return pool.Permanent(err)
		}
		return err
	}, 0)
}

// logError logs failures the caller cannot fix at error level and the rest
// at debug.
func (s *Server) logError(r *http.Request, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperr.Classify(err).HTTPStatus >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), msg, args...)
		return
	}
	s.logger.DebugContext(r.Context(), msg, args...)
}
