package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory maps. It is intended for
// tests and single-process demos; nothing survives a restart.
type MemoryStore struct {
	slots    map[SlotKey]*TimeSlot
	bookings map[string]*Booking
	now      func() time.Time
	closed   bool
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:    make(map[SlotKey]*TimeSlot),
		bookings: make(map[string]*Booking),
		now:      time.Now,
	}
}

var errMemoryClosed = errors.New("memory store closed")

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NewError("memory", "open", errMemoryClosed)
	}
	return &memorySession{store: s}, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memorySession struct {
	store *MemoryStore
}

func (m *memorySession) GetSlot(_ context.Context, key SlotKey) (*TimeSlot, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[key]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *slot
	return &cp, nil
}

func (m *memorySession) UpsertSlot(_ context.Context, key SlotKey, capacity int) (*TimeSlot, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[key]
	if !ok {
		slot = &TimeSlot{SlotKey: key}
		s.slots[key] = slot
	} else if capacity < slot.BookedCount {
		return nil, ErrCapacityBelowBooked
	}
	slot.Capacity = capacity
	slot.UpdatedAt = s.now().UTC()
	cp := *slot
	return &cp, nil
}

func (m *memorySession) CommitReservation(_ context.Context, expected int, b *Booking) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[b.SlotKey]
	if !ok {
		return false, ErrSlotNotFound
	}
	if slot.BookedCount != expected || slot.BookedCount+b.Units > slot.Capacity {
		return false, nil
	}
	slot.BookedCount += b.Units
	slot.UpdatedAt = s.now().UTC()
	cp := *b
	s.bookings[b.ID] = &cp
	return true, nil
}

func (m *memorySession) GetBooking(_ context.Context, id string) (*Booking, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memorySession) CancelReservation(_ context.Context, expected int, b *Booking) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[b.ID]; !ok {
		return false, ErrBookingNotFound
	}
	slot, ok := s.slots[b.SlotKey]
	if !ok {
		return false, ErrSlotNotFound
	}
	if slot.BookedCount != expected || slot.BookedCount < b.Units {
		return false, nil
	}
	slot.BookedCount -= b.Units
	slot.UpdatedAt = s.now().UTC()
	delete(s.bookings, b.ID)
	return true, nil
}

func (m *memorySession) PruneBefore(_ context.Context, date string) (int, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.slots {
		if key.Date < date {
			delete(s.slots, key)
			removed++
		}
	}
	for id, b := range s.bookings {
		if b.Date < date {
			delete(s.bookings, id)
		}
	}
	return removed, nil
}

func (m *memorySession) Ping(_ context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.store.closed {
		return errMemoryClosed
	}
	return nil
}

func (m *memorySession) Close() error { return nil }
