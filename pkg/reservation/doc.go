// Package reservation arbitrates concurrent attempts to book a
// capacity-limited time slot.
//
// # Algorithm
//
// Reserve runs an optimistic loop:
//
//  1. Read the slot through a pooled session.
//  2. If booked + units > capacity, fail with ErrSlotFull. Nothing is written.
//  3. Commit with a compare-and-swap: the booked count is raised only if it
//     still equals the value read in step 1, and the booking is written in
//     the same storage transaction.
//  4. If the swap lost, back off (BackoffBase * attempt, jittered) and retry
//     from step 1. After MaxAttempts the caller gets ErrReservationConflict.
//
// A caller that loses a swap always re-reads, so once the slot is full every
// remaining caller sees ErrSlotFull rather than spinning.
//
// # Basic Usage
//
//	sessions, _ := pool.New(ctx, poolCfg, store.Open)
//	coordinator, err := reservation.New(sessions, reservation.Config{
//	    MaxAttempts: 5,
//	    BackoffBase: 10 * time.Millisecond,
//	})
//
//	booking, err := coordinator.Reserve(ctx, reservation.Request{
//	    SlotKey: storage.SlotKey{CaptainID: "cap-7", Date: "2026-07-04", Time: "09:00"},
//	    Units:   2,
//	})
//	switch {
//	case errors.Is(err, reservation.ErrSlotFull):
//	    // sold out
//	case errors.Is(err, reservation.ErrReservationConflict):
//	    // heavy contention, caller may retry
//	}
//
// Cancel reverses a booking with the same loop.
package reservation
