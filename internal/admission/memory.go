package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sliding windows and counters in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	counters map[string]int
}

// NewMemoryStore returns an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string][]time.Time),
		counters: make(map[string]int),
	}
}

func (s *MemoryStore) AdmitWindow(_ context.Context, clientID string, now time.Time, window time.Duration, limit int) (WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An entry stamped exactly now-window has left the window.
	cutoff := now.Add(-window)
	kept := s.requests[clientID][:0]
	for _, ts := range s.requests[clientID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	res := WindowResult{Count: len(kept)}
	if len(kept) < limit {
		kept = append(kept, now)
		res.Accepted = true
		res.Count = len(kept)
	}
	if len(kept) > 0 {
		res.Oldest = kept[0]
	}
	if len(kept) == 0 {
		delete(s.requests, clientID)
	} else {
		s.requests[clientID] = kept
	}
	return res, nil
}

func (s *MemoryStore) Concurrency(_ context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[clientID], nil
}

func (s *MemoryStore) AcquireSlot(_ context.Context, clientID string, max int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.counters[clientID]
	if cur >= max {
		return cur, false, nil
	}
	s.counters[clientID] = cur + 1
	return cur + 1, true, nil
}

func (s *MemoryStore) Increment(_ context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[clientID]++
	return s.counters[clientID], nil
}

func (s *MemoryStore) Decrement(_ context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.counters[clientID] - 1
	if cur <= 0 {
		delete(s.counters, clientID)
		return 0, nil
	}
	s.counters[clientID] = cur
	return cur, nil
}

var _ CounterStore = (*MemoryStore)(nil)
