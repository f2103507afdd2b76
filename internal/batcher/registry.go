package batcher

import (
	"sync"

	"github.com/memyselfandm/chronicle/internal/health"
	"github.com/memyselfandm/chronicle/internal/logging"
	"github.com/memyselfandm/chronicle/internal/metrics"
)

// subscriberQueueSize bounds each subscriber's delivery queue. Batches are
// delivered per subscriber in flush order; a full queue applies
// backpressure to the dispatcher rather than dropping batches.
const subscriberQueueSize = 256

type subscriber struct {
	queue    chan Batch
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscriber) shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// registry fans dispatched batches out to registered consumers. Each
// subscriber owns a delivery goroutine and a FIFO queue, so a slow or
// failing callback cannot delay the others or reorder its own deliveries.
type registry struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
	closed bool
	wg     sync.WaitGroup

	monitor *health.Monitor
	log     *logging.Logger
}

func newRegistry(monitor *health.Monitor, log *logging.Logger) *registry {
	return &registry{
		subs:    make(map[int]*subscriber),
		monitor: monitor,
		log:     log,
	}
}

// subscribe registers fn and returns an idempotent unsubscribe function.
// There is no replay: the subscriber sees only batches flushed after
// registration. Subscribing after close returns a no-op unsubscribe.
func (r *registry) subscribe(fn func(Batch)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return func() {}
	}

	id := r.next
	r.next++
	s := &subscriber{
		queue: make(chan Batch, subscriberQueueSize),
		stop:  make(chan struct{}),
	}
	r.subs[id] = s

	r.wg.Add(1)
	go r.deliver(id, s, fn)

	return func() { r.remove(id) }
}

func (r *registry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok {
		return
	}
	delete(r.subs, id)
	s.shutdown()
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *registry) deliver(id int, s *subscriber, fn func(Batch)) {
	defer r.wg.Done()
	for {
		select {
		case batch, ok := <-s.queue:
			if !ok {
				return
			}
			r.invoke(id, fn, batch)
		case <-s.stop:
			return
		}
	}
}

// invoke isolates a single callback invocation. A panicking callback is
// recovered and counted; it never prevents delivery to other subscribers
// or corrupts engine state.
func (r *registry) invoke(id int, fn func(Batch), batch Batch) {
	defer func() {
		if p := recover(); p != nil {
			r.monitor.RecordError()
			metrics.SubscriberErrors.Inc()
			r.log.Error("subscriber callback panicked",
				logging.FieldSubscriber, id,
				logging.FieldBatchID, batch.ID,
				"panic", p)
		}
	}()
	fn(batch)
}

// notify enqueues the batch on every live subscriber queue. Called only
// from the accumulation goroutine, which serializes batch order. The send
// races cleanly with unsubscribe: a stopped subscriber's send is skipped.
func (r *registry) notify(batch Batch) {
	r.mu.Lock()
	targets := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		select {
		case s.queue <- batch:
		case <-s.stop:
		}
	}
}

// close shuts the registry down after the dispatcher has stopped. Queues
// are closed (no notifier is active anymore) and remaining queued batches
// are delivered before close returns.
func (r *registry) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, s := range r.subs {
		delete(r.subs, id)
		close(s.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
