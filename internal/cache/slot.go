// Package cache implements the gateway's two caching primitives: a
// singleton slot for values that are refreshed in place (head state,
// witness list) and a bounded FIFO-eviction map for immutable block
// artifacts keyed by height.
package cache

import (
	"sync"
	"time"
)

// Slot holds a single value that is refreshed in place once its age
// exceeds the caller-supplied TTL. It is safe for concurrent use.
type Slot[T any] struct {
	mu       sync.Mutex
	value    T
	storedAt time.Time
	present  bool
}

// RefreshFunc produces a fresh value for a Slot.
type RefreshFunc[T any] func() (T, error)

// GetOrRefresh returns the stored value if its age is within ttl. Otherwise
// it calls refresh: on success the slot is updated and the new value is
// returned (a miss); on failure the stale value is returned if one is
// present (a degraded hit), else the error is surfaced.
func (s *Slot[T]) GetOrRefresh(ttl time.Duration, refresh RefreshFunc[T], counters *Counters) (T, error) {
	s.mu.Lock()
	if s.present && time.Since(s.storedAt) < ttl {
		v := s.value
		s.mu.Unlock()
		counters.recordHit()
		return v, nil
	}
	stalePresent := s.present
	staleValue := s.value
	s.mu.Unlock()

	fresh, err := refresh()
	if err != nil {
		if stalePresent {
			counters.recordDegradedHit()
			return staleValue, nil
		}
		counters.recordMiss()
		var zero T
		return zero, err
	}

	s.mu.Lock()
	s.value = fresh
	s.storedAt = time.Now()
	s.present = true
	s.mu.Unlock()

	counters.recordMiss()
	return fresh, nil
}

// Peek returns the currently stored value and whether one is present,
// without triggering a refresh or touching the counters.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.present
}

// Drop clears the slot, forcing the next GetOrRefresh to call refresh.
func (s *Slot[T]) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.present = false
	s.storedAt = time.Time{}
}
