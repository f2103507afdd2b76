package batcher_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/event"
)

// collector is a test subscriber that records every delivered batch.
type collector struct {
	mu      sync.Mutex
	batches []batcher.Batch
}

func (c *collector) callback(b batcher.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *collector) snapshot() []batcher.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]batcher.Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

func (c *collector) eventIDs() []string {
	var ids []string
	for _, b := range c.snapshot() {
		for _, e := range b.Events {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func rawEvent(i int, ts time.Time) event.Raw {
	return event.Raw{
		ID:        fmt.Sprintf("evt-%03d", i),
		SessionID: "sess-1",
		Type:      "notification",
		Timestamp: ts,
	}
}

func newBatcher(t *testing.T, cfg batcher.Config) *batcher.Batcher {
	t.Helper()
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}
	b, err := batcher.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := batcher.New(batcher.Config{Window: -1, MaxBatchSize: 10, QueueSize: 10}, nil)
	assert.ErrorIs(t, err, batcher.ErrInvalidWindow)

	_, err = batcher.New(batcher.Config{Window: time.Second, MaxBatchSize: 0, QueueSize: 10}, nil)
	assert.ErrorIs(t, err, batcher.ErrInvalidBatchSize)
}

func TestBatcher_BasicWindowing(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        100 * time.Millisecond,
		MaxBatchSize:  50,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	for i := 0; i < 10; i++ {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)

	got := c.snapshot()[0]
	require.Equal(t, 10, got.Size)
	require.Len(t, got.Events, 10)
	for i := 1; i < len(got.Events); i++ {
		assert.False(t, got.Events[i].Timestamp.Before(got.Events[i-1].Timestamp),
			"events must be non-decreasing by timestamp")
	}
	assert.False(t, got.WindowEnd.Before(got.WindowStart))
}

func TestBatcher_PreserveOrderSortsOutOfOrderArrivals(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        10 * time.Second,
		MaxBatchSize:  50,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	// Arrive out of timestamp order.
	for _, i := range []int{4, 0, 3, 1, 2} {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}
	b.Flush()

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	ids := c.eventIDs()
	assert.Equal(t, []string{"evt-000", "evt-001", "evt-002", "evt-003", "evt-004"}, ids)
}

func TestBatcher_SizeTriggeredFlush(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        time.Second,
		MaxBatchSize:  5,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	for i := 0; i < 12; i++ {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}

	// Two full batches must arrive well before the one second window.
	require.Eventually(t, func() bool { return c.count() >= 2 }, 300*time.Millisecond, 5*time.Millisecond)

	b.Flush()
	require.Eventually(t, func() bool { return len(c.eventIDs()) == 12 }, time.Second, 5*time.Millisecond)

	for _, got := range c.snapshot() {
		assert.LessOrEqual(t, got.Size, 5)
	}
}

func TestBatcher_NoLossNoDuplication(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        50 * time.Millisecond,
		MaxBatchSize:  7,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	want := make(map[string]int, 100)
	for i := 0; i < 100; i++ {
		raw := rawEvent(i, base.Add(time.Duration(i)*time.Millisecond))
		want[raw.ID]++
		b.AddEvent(raw)
	}
	b.Flush()

	require.Eventually(t, func() bool { return len(c.eventIDs()) == 100 }, 2*time.Second, 5*time.Millisecond)

	got := make(map[string]int, 100)
	for _, id := range c.eventIDs() {
		got[id]++
	}
	assert.Equal(t, want, got, "multiset of delivered ids must equal multiset of added ids")
}

func TestBatcher_FlushOnEmptyBufferIsNoop(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: time.Second, MaxBatchSize: 10})
	c := &collector{}
	b.Subscribe(c.callback)

	b.Flush()
	b.Flush()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.count(), "an empty batch must never be dispatched")
}

func TestBatcher_DestroyDrainsPending(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        10 * time.Second,
		MaxBatchSize:  50,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	for i := 0; i < 3; i++ {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}
	b.Destroy()

	// Destroy is synchronous: the final batch is delivered before it returns.
	require.Equal(t, 1, c.count())
	assert.Equal(t, 3, c.snapshot()[0].Size)
}

func TestBatcher_PostDestroyOperationsAreNoops(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: time.Second, MaxBatchSize: 10})
	c := &collector{}
	unsubscribe := b.Subscribe(c.callback)

	b.Destroy()
	b.Destroy()

	b.AddEvent(rawEvent(0, time.Now()))
	b.Flush()
	unsubscribe()
	unsubscribe()

	later := b.Subscribe(c.callback)
	later()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.count())
}

func TestBatcher_UnsubscribeIsIdempotent(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: 10 * time.Second, MaxBatchSize: 50})
	kept := &collector{}
	dropped := &collector{}

	b.Subscribe(kept.callback)
	unsubscribe := b.Subscribe(dropped.callback)

	unsubscribe()
	unsubscribe()

	b.AddEvent(rawEvent(0, time.Now()))
	b.Flush()

	require.Eventually(t, func() bool { return kept.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, dropped.count())
}

func TestBatcher_AllSubscribersReceiveSameBatch(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: 10 * time.Second, MaxBatchSize: 50})
	first := &collector{}
	second := &collector{}
	b.Subscribe(first.callback)
	b.Subscribe(second.callback)

	b.AddEvent(rawEvent(0, time.Now()))
	b.Flush()

	require.Eventually(t, func() bool { return first.count() == 1 && second.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, first.snapshot()[0].ID, second.snapshot()[0].ID)
}

func TestBatcher_PartialFailureIsolation(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        10 * time.Second,
		MaxBatchSize:  1, // one event per batch so each delivery is isolated
		PreserveOrder: true,
	})

	var mu sync.Mutex
	delivered := 0
	invocation := 0
	b.Subscribe(func(batch batcher.Batch) {
		mu.Lock()
		invocation++
		n := invocation
		mu.Unlock()
		if n%10 == 0 {
			panic("subscriber processing failed")
		}
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	base := time.Now()
	for i := 0; i < 100; i++ {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}

	// ErrorCount is recorded after the panicking invocation returns, so
	// waiting on it guarantees all 100 deliveries have fully settled.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 90 && b.Metrics().ErrorCount == 10
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 100, invocation)
	mu.Unlock()
	assert.Equal(t, int64(100), b.Metrics().ProcessedCount)
	assert.True(t, b.Healthy(), "a burst of isolated failures must not flip health")
}

func TestBatcher_PanicDoesNotStarveOtherSubscribers(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: 10 * time.Second, MaxBatchSize: 50})
	healthy := &collector{}
	b.Subscribe(func(batcher.Batch) { panic("always failing") })
	b.Subscribe(healthy.callback)

	b.AddEvent(rawEvent(0, time.Now()))
	b.Flush()
	b.AddEvent(rawEvent(1, time.Now()))
	b.Flush()

	require.Eventually(t, func() bool { return healthy.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_BatchesDeliveredInFlushOrder(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        10 * time.Second,
		MaxBatchSize:  2,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	for i := 0; i < 10; i++ {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}

	require.Eventually(t, func() bool { return c.count() == 5 }, time.Second, 5*time.Millisecond)

	ids := c.eventIDs()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i], "cross-batch delivery must preserve flush order")
	}
}

func TestBatcher_RejectsMalformedInput(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: 10 * time.Second, MaxBatchSize: 50})
	c := &collector{}
	b.Subscribe(c.callback)

	b.AddEvent(event.Raw{Type: "stop"})                  // missing id
	b.AddEvent(event.Raw{ID: "evt-1"})                   // missing type
	neg := int64(-10)
	b.AddEvent(event.Raw{ID: "evt-2", Type: "post_tool_use", DurationMs: &neg})
	b.Flush()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.count())
	assert.Equal(t, int64(3), b.Metrics().RejectedCount)
}

func TestBatcher_UpdateConfigValidation(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: time.Second, MaxBatchSize: 10})

	bad := -1 * time.Second
	err := b.UpdateConfig(batcher.ConfigUpdate{Window: &bad})
	require.ErrorIs(t, err, batcher.ErrInvalidWindow)
	assert.Equal(t, time.Second, b.Config().Window, "previous valid config must be retained")

	size := 0
	err = b.UpdateConfig(batcher.ConfigUpdate{MaxBatchSize: &size})
	require.ErrorIs(t, err, batcher.ErrInvalidBatchSize)
	assert.Equal(t, 10, b.Config().MaxBatchSize)
}

func TestBatcher_UpdateConfigAppliesOnNextCycle(t *testing.T) {
	b := newBatcher(t, batcher.Config{
		Window:        10 * time.Second,
		MaxBatchSize:  10,
		PreserveOrder: true,
	})
	c := &collector{}
	b.Subscribe(c.callback)

	size := 2
	require.NoError(t, b.UpdateConfig(batcher.ConfigUpdate{MaxBatchSize: &size}))
	assert.Equal(t, 2, b.Config().MaxBatchSize)

	base := time.Now()
	b.AddEvent(rawEvent(0, base))
	b.AddEvent(rawEvent(1, base.Add(time.Millisecond)))

	// The new size cap triggers a flush without the window elapsing.
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, c.snapshot()[0].Size)
}

func TestBatcher_MetricsTrackProcessedCount(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: 10 * time.Second, MaxBatchSize: 50})
	c := &collector{}
	b.Subscribe(c.callback)

	base := time.Now()
	for i := 0; i < 6; i++ {
		b.AddEvent(rawEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}
	b.Flush()

	require.Eventually(t, func() bool { return b.Metrics().ProcessedCount == 6 },
		time.Second, 5*time.Millisecond)
	m := b.Metrics()
	assert.Zero(t, m.CurrentBatchSize)
	assert.Zero(t, m.ErrorCount)
}

func TestBatcher_OptimizationTipsQuietPipeline(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: time.Second, MaxBatchSize: 10, QueueSize: 100})

	tips := b.OptimizationTips()
	assert.False(t, tips.ShouldFlushImmediately)
	assert.False(t, tips.ShouldReduceBatchSize)
	assert.Zero(t, tips.MemoryPressureRatio)
}

func TestBatcher_RecommendedBatchSizeIsClamped(t *testing.T) {
	b := newBatcher(t, batcher.Config{Window: 100 * time.Millisecond, MaxBatchSize: 50})

	got := b.RecommendedBatchSize(10, 500)
	assert.GreaterOrEqual(t, got, 10)
	assert.LessOrEqual(t, got, 500)
}
