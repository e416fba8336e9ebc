package api

import (
	"encoding/json"
	"time"

	"charterhub/berth/pkg/storage"
)

// SlotRequest creates a slot or changes its capacity.
type SlotRequest struct {
	CaptainID string `json:"captain_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Capacity  int    `json:"capacity"`
}

// Key returns the slot key named by the request.
func (r SlotRequest) Key() storage.SlotKey {
	return storage.SlotKey{CaptainID: r.CaptainID, Date: r.Date, Time: r.Time}
}

// SlotResponse describes a slot and its remaining capacity.
type SlotResponse struct {
	CaptainID   string    `json:"captain_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
	Available   int       `json:"available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSlotResponse renders s.
func NewSlotResponse(s *storage.TimeSlot) SlotResponse {
	return SlotResponse{
		CaptainID:   s.CaptainID,
		Date:        s.Date,
		Time:        s.Time,
		Capacity:    s.Capacity,
		BookedCount: s.BookedCount,
		Available:   s.Available(),
		UpdatedAt:   s.UpdatedAt,
	}
}

// ReservationRequest books units of a slot.
type ReservationRequest struct {
	CaptainID  string          `json:"captain_id"`
	Date       string          `json:"date"`
	TimeSlot   string          `json:"time_slot"`
	Units      int             `json:"units"`
	CustomerID string          `json:"customer_id"`
	Payload    json.RawMessage `json:"booking_payload,omitempty"`
}

// BookingResponse describes a committed booking.
type BookingResponse struct {
	ID         string          `json:"id"`
	CaptainID  string          `json:"captain_id"`
	Date       string          `json:"date"`
	TimeSlot   string          `json:"time_slot"`
	Units      int             `json:"units"`
	CustomerID string          `json:"customer_id"`
	Payload    json.RawMessage `json:"booking_payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewBookingResponse renders b.
func NewBookingResponse(b *storage.Booking) BookingResponse {
	return BookingResponse{
		ID:         b.ID,
		CaptainID:  b.CaptainID,
		Date:       b.Date,
		TimeSlot:   b.Time,
		Units:      b.Units,
		CustomerID: b.CustomerID,
		Payload:    b.Payload,
		CreatedAt:  b.CreatedAt,
	}
}
