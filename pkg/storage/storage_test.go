package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// backends returns every Store available in this environment.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
	}

	for _, driver := range []string{"sqlite", "sqlite3"} {
		s, err := NewSQLiteStore(ctx, &SQLiteConfig{
			Path:        filepath.Join(t.TempDir(), driver+".db"),
			Driver:      driver,
			WALMode:     true,
			BusyTimeout: 5 * time.Second,
		})
		if err != nil {
			// mattn/go-sqlite3 needs cgo.
			t.Logf("skipping %s backend: %v", driver, err)
			continue
		}
		stores[driver] = s
	}

	if uri := os.Getenv("BERTH_TEST_MONGO_URI"); uri != "" {
		s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Database: "berth_test_" + uuid.NewString()[:8]})
		if err != nil {
			t.Fatalf("NewMongoStore() error = %v", err)
		}
		stores["mongo"] = s
	}

	for _, s := range stores {
		s := s
		t.Cleanup(func() { s.Close() })
	}
	return stores
}

func openSession(t *testing.T, store Store) Session {
	t.Helper()
	sess, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func newBooking(key SlotKey, units int) *Booking {
	return &Booking{
		ID:         uuid.NewString(),
		SlotKey:    key,
		Units:      units,
		CustomerID: "cust-1",
		Payload:    []byte(`{"party":"smith"}`),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSession_SlotLifecycle(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := openSession(t, store)
			key := SlotKey{CaptainID: "cap-1", Date: "2026-07-04", Time: "09:00"}

			if _, err := sess.GetSlot(ctx, key); !errors.Is(err, ErrSlotNotFound) {
				t.Fatalf("Expected ErrSlotNotFound, got %v", err)
			}

			slot, err := sess.UpsertSlot(ctx, key, 4)
			if err != nil {
				t.Fatalf("UpsertSlot() error = %v", err)
			}
			if slot.Capacity != 4 || slot.BookedCount != 0 {
				t.Errorf("Unexpected slot after create: %+v", slot)
			}

			ok, err := sess.CommitReservation(ctx, 0, newBooking(key, 3))
			if err != nil || !ok {
				t.Fatalf("CommitReservation() = %v, %v", ok, err)
			}

			if _, err := sess.UpsertSlot(ctx, key, 2); !errors.Is(err, ErrCapacityBelowBooked) {
				t.Errorf("Expected ErrCapacityBelowBooked, got %v", err)
			}

			slot, err = sess.UpsertSlot(ctx, key, 6)
			if err != nil {
				t.Fatalf("UpsertSlot() error = %v", err)
			}
			if slot.Capacity != 6 || slot.BookedCount != 3 {
				t.Errorf("Expected capacity 6 with 3 booked, got %+v", slot)
			}
		})
	}
}

func TestSession_CommitReservationCompareAndSwap(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := openSession(t, store)
			key := SlotKey{CaptainID: "cap-2", Date: "2026-07-04", Time: "10:30"}
			if _, err := sess.UpsertSlot(ctx, key, 2); err != nil {
				t.Fatalf("UpsertSlot() error = %v", err)
			}

			stale := newBooking(key, 1)
			ok, err := sess.CommitReservation(ctx, 1, stale)
			if err != nil {
				t.Fatalf("CommitReservation() error = %v", err)
			}
			if ok {
				t.Fatal("Expected stale expected count to lose the swap")
			}
			if _, err := sess.GetBooking(ctx, stale.ID); !errors.Is(err, ErrBookingNotFound) {
				t.Errorf("Expected no booking written on a lost swap, got %v", err)
			}

			b := newBooking(key, 2)
			if ok, err := sess.CommitReservation(ctx, 0, b); err != nil || !ok {
				t.Fatalf("CommitReservation() = %v, %v", ok, err)
			}

			over := newBooking(key, 1)
			if ok, _ := sess.CommitReservation(ctx, 2, over); ok {
				t.Fatal("Expected commit beyond capacity to be refused")
			}

			got, err := sess.GetBooking(ctx, b.ID)
			if err != nil {
				t.Fatalf("GetBooking() error = %v", err)
			}
			if got.Units != 2 || got.SlotKey != key || string(got.Payload) != `{"party":"smith"}` {
				t.Errorf("Unexpected booking: %+v", got)
			}

			slot, _ := sess.GetSlot(ctx, key)
			if slot.BookedCount != 2 {
				t.Errorf("Expected booked count 2, got %d", slot.BookedCount)
			}
		})
	}
}

func TestSession_CancelReservation(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := openSession(t, store)
			key := SlotKey{CaptainID: "cap-3", Date: "2026-07-05", Time: "14:00"}
			if _, err := sess.UpsertSlot(ctx, key, 5); err != nil {
				t.Fatalf("UpsertSlot() error = %v", err)
			}
			b := newBooking(key, 2)
			if ok, err := sess.CommitReservation(ctx, 0, b); err != nil || !ok {
				t.Fatalf("CommitReservation() = %v, %v", ok, err)
			}

			if ok, err := sess.CancelReservation(ctx, 0, b); err != nil || ok {
				t.Fatalf("Expected stale cancel to lose the swap, got %v, %v", ok, err)
			}
			if _, err := sess.GetBooking(ctx, b.ID); err != nil {
				t.Fatalf("Expected booking to survive a lost swap, got %v", err)
			}

			if ok, err := sess.CancelReservation(ctx, 2, b); err != nil || !ok {
				t.Fatalf("CancelReservation() = %v, %v", ok, err)
			}
			slot, _ := sess.GetSlot(ctx, key)
			if slot.BookedCount != 0 {
				t.Errorf("Expected units restored, booked=%d", slot.BookedCount)
			}
			if _, err := sess.GetBooking(ctx, b.ID); !errors.Is(err, ErrBookingNotFound) {
				t.Errorf("Expected booking deleted, got %v", err)
			}
		})
	}
}

func TestSession_PruneBefore(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := openSession(t, store)

			old := SlotKey{CaptainID: "cap-4", Date: "2026-01-01", Time: "08:00"}
			recent := SlotKey{CaptainID: "cap-4", Date: "2026-09-01", Time: "08:00"}
			for _, key := range []SlotKey{old, recent} {
				if _, err := sess.UpsertSlot(ctx, key, 3); err != nil {
					t.Fatalf("UpsertSlot() error = %v", err)
				}
			}
			oldBooking := newBooking(old, 1)
			if ok, err := sess.CommitReservation(ctx, 0, oldBooking); err != nil || !ok {
				t.Fatalf("CommitReservation() = %v, %v", ok, err)
			}

			n, err := sess.PruneBefore(ctx, "2026-06-01")
			if err != nil {
				t.Fatalf("PruneBefore() error = %v", err)
			}
			if n != 1 {
				t.Errorf("Expected 1 slot pruned, got %d", n)
			}
			if _, err := sess.GetSlot(ctx, old); !errors.Is(err, ErrSlotNotFound) {
				t.Errorf("Expected old slot pruned, got %v", err)
			}
			if _, err := sess.GetBooking(ctx, oldBooking.ID); !errors.Is(err, ErrBookingNotFound) {
				t.Errorf("Expected old booking pruned, got %v", err)
			}
			if _, err := sess.GetSlot(ctx, recent); err != nil {
				t.Errorf("Expected recent slot kept, got %v", err)
			}
		})
	}
}

func TestSession_ConcurrentCommitsNeverOverbook(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := SlotKey{CaptainID: "cap-5", Date: "2026-08-01", Time: "11:00"}
			if _, err := openSession(t, store).UpsertSlot(ctx, key, 3); err != nil {
				t.Fatalf("UpsertSlot() error = %v", err)
			}

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					sess, err := store.Open(ctx)
					if err != nil {
						t.Errorf("Open() error = %v", err)
						return
					}
					defer sess.Close()

					// Everyone read booked=0; at most one swap can win.
					ok, err := sess.CommitReservation(ctx, 0, newBooking(key, 1))
					if err != nil {
						t.Errorf("CommitReservation() error = %v", err)
						return
					}
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if wins != 1 {
				t.Errorf("Expected exactly one winning swap, got %d", wins)
			}
		})
	}
}

func TestSlotKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     SlotKey
		wantErr bool
	}{
		{"valid", SlotKey{CaptainID: "c", Date: "2026-07-04", Time: "09:30"}, false},
		{"missing captain", SlotKey{Date: "2026-07-04", Time: "09:30"}, true},
		{"bad date", SlotKey{CaptainID: "c", Date: "07/04/2026", Time: "09:30"}, true},
		{"bad time", SlotKey{CaptainID: "c", Date: "2026-07-04", Time: "25:00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSlot) {
				t.Errorf("Expected ErrInvalidSlot, got %v", err)
			}
		})
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), Config{Driver: "postgres"}); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

func TestNew_Memory(t *testing.T) {
	s, err := New(context.Background(), Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Name() != "memory" {
		t.Errorf("Expected memory store, got %s", s.Name())
	}
}
