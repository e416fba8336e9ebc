package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// MemoryStore keeps Records in a fixed-capacity LRU map. When full, adding
// a new key evicts the least recently used one, which forgets its history.
type MemoryStore struct {
	mu      sync.Mutex
	records *simplelru.LRU[string, Record]
	evicted uint64
}

// NewMemoryStore creates a store holding at most maxKeys records.
// A non-positive maxKeys uses DefaultMaxKeys.
func NewMemoryStore(maxKeys int) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	// simplelru only fails on a non-positive size.
	records, _ := simplelru.NewLRU[string, Record](maxKeys, nil)
	return &MemoryStore{records: records}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration, max int) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Get(key)
	rec, allowed := step(rec, ok, now, window, max)
	if s.records.Add(key, rec) {
		s.evicted++
	}
	return rec, allowed, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string, _ time.Time) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Peek(key)
	return rec, ok, nil
}

// Refund implements Store.
func (s *MemoryStore) Refund(_ context.Context, key string, now, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Peek(key)
	if !ok || rec.Expired(now) || !rec.ResetAt.Equal(resetAt) || rec.Count == 0 {
		return nil
	}
	rec.Count--
	s.records.Add(key, rec)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records.Remove(key)
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Len()
}

// Evicted returns how many records were dropped to make room.
func (s *MemoryStore) Evicted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Sweep removes records whose window ended before now and returns how many
// were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.records.Keys() {
		if rec, ok := s.records.Peek(key); ok && rec.Expired(now) {
			s.records.Remove(key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired records every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.Sweep(now)
			}
		}
	}()
}
