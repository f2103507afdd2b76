// Package feed holds the bounded in-memory event history backing the live
// feed. It consumes dispatched batches and keeps the most recent events up
// to a fixed capacity.
package feed

import (
	"sync"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/event"
	"github.com/memyselfandm/chronicle/internal/metrics"
)

// DefaultMaxEvents caps the history when no explicit capacity is given.
const DefaultMaxEvents = 1000

// Store is a fixed-capacity FIFO event history. Events append at the tail;
// once capacity is exceeded the oldest-arrived entries are evicted from the
// head. Eviction is by arrival into the store, never by timestamp: a burst
// can deliver out-of-timestamp-order events within one batch, and the store
// stays O(1) amortized per insert instead of re-sorting on eviction.
// Duplicate ids are allowed by contract; de-duplication is the producer's
// responsibility.
type Store struct {
	mu        sync.RWMutex
	maxEvents int
	events    []event.Event
	rejected  int64
	evicted   int64
}

// New creates a Store holding at most maxEvents entries. Non-positive
// capacities fall back to DefaultMaxEvents.
func New(maxEvents int) *Store {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Store{maxEvents: maxEvents}
}

// Ingest appends the batch's events to the history, re-validating each one
// as defense in depth against a misbehaving subscriber path, then evicts
// from the head until the capacity bound holds. New events always win over
// old ones.
func (s *Store) Ingest(b batcher.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range b.Events {
		if !event.Valid(e) {
			s.rejected++
			continue
		}
		s.events = append(s.events, e)
	}

	if over := len(s.events) - s.maxEvents; over > 0 {
		s.evicted += int64(over)
		metrics.FeedEvicted.Add(float64(over))
		// Copy down instead of re-slicing so evicted entries do not pin
		// the backing array.
		s.events = append(s.events[:0], s.events[over:]...)
	}

	metrics.FeedEvents.Set(float64(len(s.events)))
}

// Snapshot returns a copy of the history, oldest-arrived first. Callers
// own the returned slice and may not observe later mutations.
func (s *Store) Snapshot() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the current history length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Evicted returns the total number of events dropped by capacity eviction.
func (s *Store) Evicted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}

// Rejected returns the number of events the re-validation pass refused.
func (s *Store) Rejected() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// Clear empties the history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	metrics.FeedEvents.Set(0)
}

// Attach subscribes the store to a batcher and returns the unsubscribe
// function.
func (s *Store) Attach(b *batcher.Batcher) func() {
	return b.Subscribe(s.Ingest)
}
