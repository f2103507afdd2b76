package batcher

import (
	"sort"
	"sync"

	"github.com/memyselfandm/chronicle/internal/event"
)

// orderingBuffer holds pending events between flush triggers. push is an
// O(1) amortized append preserving arrival order; drain empties the buffer
// and hands back its contents in a single critical section, so no event can
// be observed both before and after a drain.
type orderingBuffer struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *orderingBuffer) push(e event.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return len(b.events)
}

func (b *orderingBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// drain atomically empties the buffer. With sorted set, the result is
// stably sorted ascending by timestamp; sort stability over the
// arrival-ordered slice breaks timestamp ties FIFO.
func (b *orderingBuffer) drain(sorted bool) []event.Event {
	b.mu.Lock()
	out := b.events
	b.events = nil
	b.mu.Unlock()

	if sorted {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Timestamp.Before(out[j].Timestamp)
		})
	}
	return out
}
