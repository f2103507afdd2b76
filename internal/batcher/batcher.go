// Package batcher implements the event batching engine: it accumulates
// validated events into time-windowed batches, flushes on window expiry,
// size cap, explicit request or shutdown, and fans completed batches out
// to subscribers while tracking health and backpressure.
package batcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/memyselfandm/chronicle/internal/event"
	"github.com/memyselfandm/chronicle/internal/health"
	"github.com/memyselfandm/chronicle/internal/logging"
	"github.com/memyselfandm/chronicle/internal/metrics"
)

type state int32

const (
	stateIdle state = iota
	stateAccumulating
	stateFlushing
	stateDestroyed
)

// Batcher owns the accumulation window and its flush triggers. A single
// goroutine owns the ordering buffer and the window timer; producers reach
// it through a bounded ingress queue, so AddEvent never blocks the caller.
type Batcher struct {
	mu  sync.RWMutex
	cfg Config

	ingress chan event.Event
	flushCh chan chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	buf     *orderingBuffer
	reg     *registry
	monitor *health.Monitor
	log     *logging.Logger

	state    atomic.Int32
	rejected atomic.Int64

	destroyOnce sync.Once
}

// New validates the configuration and starts the accumulation goroutine.
func New(cfg Config, log *logging.Logger) (*Batcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Default()
	}

	monitor := health.New(health.Config{})
	b := &Batcher{
		cfg:     cfg,
		ingress: make(chan event.Event, cfg.QueueSize),
		flushCh: make(chan chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		buf:     &orderingBuffer{},
		monitor: monitor,
		log:     log.With(logging.FieldComponent, "batcher"),
	}
	b.reg = newRegistry(monitor, b.log)

	metrics.QueueCapacity.Set(float64(cfg.QueueSize))

	go b.run()
	return b, nil
}

// AddEvent validates a raw event and hands it to the accumulation loop.
// Never blocks: a full ingress queue drops the event and counts it, which
// is surfaced through Metrics and OptimizationTips rather than an error.
// After Destroy this is a no-op.
func (b *Batcher) AddEvent(raw event.Raw) {
	if b.destroyed() {
		return
	}

	e, ok := event.Validate(raw)
	if !ok {
		b.rejected.Add(1)
		metrics.EventsTotal.WithLabelValues("rejected").Inc()
		b.log.Debug("rejected malformed event", logging.FieldEventID, raw.ID, logging.FieldEventType, raw.Type)
		return
	}

	select {
	case b.ingress <- e:
		metrics.EventsTotal.WithLabelValues("accepted").Inc()
	default:
		b.rejected.Add(1)
		b.monitor.RecordError()
		metrics.EventsTotal.WithLabelValues("dropped").Inc()
		b.log.Warn("ingress queue full, event dropped", logging.FieldEventID, e.ID)
	}
}

// AddEvents adds a slice of raw events in arrival order.
func (b *Batcher) AddEvents(raws []event.Raw) {
	for _, raw := range raws {
		b.AddEvent(raw)
	}
}

// Subscribe registers a callback invoked once per dispatched batch and
// returns an idempotent unsubscribe function. All subscribers receive the
// same immutable Batch value.
func (b *Batcher) Subscribe(fn func(Batch)) func() {
	return b.reg.subscribe(fn)
}

// Flush forces an immediate flush of any pending events and waits for the
// dispatch to complete. A no-op when the buffer is empty or after Destroy.
func (b *Batcher) Flush() {
	if b.destroyed() {
		return
	}

	ack := make(chan struct{})
	select {
	case b.flushCh <- ack:
		select {
		case <-ack:
		case <-b.stopped:
		}
	case <-b.stopped:
	}
}

// Destroy cancels the window timer, synchronously flushes pending events,
// waits for subscriber queues to drain, and marks the batcher terminal.
// Safe to call multiple times and concurrently with producers; every
// subsequent operation is a no-op.
func (b *Batcher) Destroy() {
	b.destroyOnce.Do(func() {
		close(b.quit)
		<-b.stopped
		b.reg.close()
		b.state.Store(int32(stateDestroyed))
		b.log.Info("batcher destroyed")
	})
}

// UpdateConfig merges a partial update into the current configuration. An
// invalid update returns an error and the previous configuration is
// retained. The update takes effect at the next accumulation cycle; an
// in-flight window keeps its original deadline.
func (b *Batcher) UpdateConfig(u ConfigUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := u.apply(b.cfg)
	if err != nil {
		return err
	}
	b.cfg = next
	return nil
}

// Config returns the current configuration.
func (b *Batcher) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Metrics returns a point-in-time snapshot of the batcher's counters.
func (b *Batcher) Metrics() Metrics {
	snap := b.monitor.Snapshot()
	pending := b.buf.len()
	return Metrics{
		QueueLength:           len(b.ingress) + pending,
		CurrentBatchSize:      pending,
		ProcessedCount:        snap.ProcessedCount,
		ErrorCount:            snap.ErrorCount,
		RejectedCount:         b.rejected.Load(),
		AverageProcessingTime: snap.AverageProcessingTime,
	}
}

// Healthy reports whether the pipeline is free of sustained degradation.
func (b *Batcher) Healthy() bool {
	return b.monitor.Healthy()
}

// OptimizationTips returns the monitor's current backpressure advice.
func (b *Batcher) OptimizationTips() health.Tips {
	cfg := b.Config()
	return b.monitor.TipsFor(len(b.ingress), cfg.QueueSize, b.buf.len(), cfg.MaxBatchSize)
}

// RecommendedBatchSize suggests a MaxBatchSize proportional to observed
// throughput, clamped to [floor, ceiling]. Advisory: callers decide
// whether to apply it through UpdateConfig.
func (b *Batcher) RecommendedBatchSize(floor, ceiling int) int {
	return b.monitor.RecommendedBatchSize(b.Config().Window, floor, ceiling)
}

func (b *Batcher) destroyed() bool {
	select {
	case <-b.quit:
		return true
	default:
		return false
	}
}

// run is the single owner of the ordering buffer and the window timer.
// Timer expiry, size-triggered flushes and explicit flushes are all
// serialized here, so two flushes can never race and double-drain the
// buffer.
func (b *Batcher) run() {
	defer close(b.stopped)

	var (
		timer       *time.Timer
		timerC      <-chan time.Time
		windowStart time.Time
		cycle       = b.Config()
	)

	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	flush := func(now time.Time) {
		events := b.buf.drain(cycle.PreserveOrder)
		disarm()
		if len(events) == 0 {
			b.state.Store(int32(stateIdle))
			return
		}

		b.state.Store(int32(stateFlushing))
		batch := Batch{
			ID:          uuid.New().String(),
			Events:      events,
			BatchedAt:   now,
			WindowStart: windowStart,
			WindowEnd:   now,
			Size:        len(events),
		}

		start := time.Now()
		b.reg.notify(batch)
		took := time.Since(start)

		b.monitor.RecordProcessed(len(events), took)
		metrics.BatchesTotal.Inc()
		metrics.BatchSize.Observe(float64(len(events)))
		metrics.FlushDuration.Observe(took.Seconds())
		b.log.Debug("batch dispatched", logging.FieldBatchID, batch.ID, logging.FieldBatchSize, batch.Size)

		b.state.Store(int32(stateIdle))
	}

	accept := func(e event.Event) {
		if b.buf.len() == 0 {
			// New accumulation cycle: snapshot the config so a
			// concurrent UpdateConfig only affects the next window.
			cycle = b.Config()
			windowStart = time.Now()
			timer = time.NewTimer(cycle.Window)
			timerC = timer.C
			b.state.Store(int32(stateAccumulating))
		}
		if n := b.buf.push(e); n >= cycle.MaxBatchSize {
			flush(time.Now())
		}
	}

	for {
		metrics.QueueDepth.Set(float64(len(b.ingress)))

		select {
		case e := <-b.ingress:
			accept(e)

		case <-timerC:
			flush(time.Now())

		case ack := <-b.flushCh:
			// Events already enqueued by producers belong to this flush:
			// drain the ingress queue before draining the buffer, so a
			// caller's add-then-flush sequence is deterministic.
			drained := false
			for !drained {
				select {
				case e := <-b.ingress:
					accept(e)
				default:
					drained = true
				}
			}
			flush(time.Now())
			close(ack)

		case <-b.quit:
			// Shutdown: drain whatever producers already enqueued,
			// respecting the size cap, then deliver the remainder.
			for {
				select {
				case e := <-b.ingress:
					if b.buf.len() == 0 {
						cycle = b.Config()
						windowStart = time.Now()
					}
					if n := b.buf.push(e); n >= cycle.MaxBatchSize {
						flush(time.Now())
					}
				default:
					flush(time.Now())
					return
				}
			}
		}
	}
}
