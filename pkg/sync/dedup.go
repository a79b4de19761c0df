package sync

import (
	stdsync "sync"
	"time"
)

// DedupStore owns the dedup/debounce timestamps for a bus instance. It is
// injected into the bus rather than kept as package state so tests and
// multi-instance setups each get isolated suppression windows.
type DedupStore struct {
	window    time.Duration
	retention time.Duration

	mu   stdsync.Mutex
	last map[string]time.Time
}

// DefaultDebounceWindow suppresses rapid duplicates of the same dedup key.
const DefaultDebounceWindow = 500 * time.Millisecond

// DefaultDedupRetention bounds how long dedup entries are remembered.
const DefaultDedupRetention = 10 * time.Second

// NewDedupStore creates a store with the given debounce window and entry
// retention. Non-positive values fall back to the defaults.
func NewDedupStore(window, retention time.Duration) *DedupStore {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	if retention < window {
		retention = window
	}
	return &DedupStore{
		window:    window,
		retention: retention,
		last:      make(map[string]time.Time),
	}
}

// Admit reports whether a dispatch under key may proceed at now. A key seen
// less than one window ago is suppressed; otherwise its timestamp is
// updated. Every call also garbage-collects entries older than the
// retention horizon so the map stays bounded.
func (s *DedupStore) Admit(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ts := range s.last {
		if now.Sub(ts) > s.retention {
			delete(s.last, k)
		}
	}

	if ts, ok := s.last[key]; ok && now.Sub(ts) < s.window {
		return false
	}
	s.last[key] = now
	return true
}

// Len reports the number of live dedup entries (used by status endpoints).
func (s *DedupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.last)
}
