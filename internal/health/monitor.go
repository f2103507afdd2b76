// Package health tracks rolling pipeline counters and derives the
// backpressure recommendations the batcher surfaces to its caller.
package health

import (
	"sync"
	"time"
)

const (
	defaultSampleWindow       = 100
	defaultErrorRateThreshold = 0.5
	defaultLatencyCeiling     = 250 * time.Millisecond
	defaultDegradedWindows    = 5

	// minWindowErrors keeps a handful of failures in an otherwise quiet
	// period from flipping health.
	minWindowErrors = 5

	// errorWindow is the trailing period over which the error rate is
	// computed.
	errorWindow = 30 * time.Second

	// throughputWindow is the trailing period used for adaptive batch
	// size recommendations.
	throughputWindow = 10 * time.Second

	// flushHighWater is the fraction of queue capacity at which the
	// monitor advises flushing immediately.
	flushHighWater = 0.5

	// reducePressure is the threshold both queue and memory pressure must
	// exceed before the monitor advises shrinking the batch size.
	// Shrinking is more disruptive than flushing sooner, so it requires
	// stronger evidence.
	reducePressure = 0.85
)

// Config bounds the monitor's sample window and degradation thresholds.
// Zero values fall back to defaults.
type Config struct {
	SampleWindow       int
	ErrorRateThreshold float64
	LatencyCeiling     time.Duration
	DegradedWindows    int
}

func (c Config) withDefaults() Config {
	if c.SampleWindow <= 0 {
		c.SampleWindow = defaultSampleWindow
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = defaultErrorRateThreshold
	}
	if c.LatencyCeiling <= 0 {
		c.LatencyCeiling = defaultLatencyCeiling
	}
	if c.DegradedWindows <= 0 {
		c.DegradedWindows = defaultDegradedWindows
	}
	return c
}

// Snapshot is a read-only view of the monitor's counters.
type Snapshot struct {
	ProcessedCount        int64
	ErrorCount            int64
	AverageProcessingTime time.Duration
}

// Tips carries the monitor's backpressure recommendations. Advisory only;
// the caller decides whether to act on them.
type Tips struct {
	ShouldFlushImmediately bool    `json:"should_flush_immediately"`
	ShouldReduceBatchSize  bool    `json:"should_reduce_batch_size"`
	MemoryPressureRatio    float64 `json:"memory_pressure_ratio"`
}

type flushSample struct {
	at     time.Time
	events int
	took   time.Duration
}

// Monitor accumulates processing samples and error events. Safe for
// concurrent use.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	processed  int64
	errors     int64
	samples    []flushSample
	next       int
	slowStreak int
	errorTimes []time.Time

	now func() time.Time
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg.withDefaults(), now: time.Now}
}

// RecordProcessed records a dispatched batch of n events that took the
// given duration to deliver.
func (m *Monitor) RecordProcessed(n int, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed += int64(n)

	s := flushSample{at: m.now(), events: n, took: took}
	if len(m.samples) < m.cfg.SampleWindow {
		m.samples = append(m.samples, s)
	} else {
		m.samples[m.next] = s
		m.next = (m.next + 1) % m.cfg.SampleWindow
	}

	if took > m.cfg.LatencyCeiling {
		m.slowStreak++
	} else {
		m.slowStreak = 0
	}
}

// RecordError records a single failure (rejected callback, failed sink).
func (m *Monitor) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors++
	m.errorTimes = append(m.errorTimes, m.now())
	m.trimErrorsLocked()
}

func (m *Monitor) trimErrorsLocked() {
	cutoff := m.now().Add(-errorWindow)
	i := 0
	for i < len(m.errorTimes) && m.errorTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		m.errorTimes = append(m.errorTimes[:0], m.errorTimes[i:]...)
	}
}

// Snapshot returns the monotonic counters and the rolling mean dispatch
// latency over the bounded sample window.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total time.Duration
	for _, s := range m.samples {
		total += s.took
	}
	var avg time.Duration
	if len(m.samples) > 0 {
		avg = total / time.Duration(len(m.samples))
	}

	return Snapshot{
		ProcessedCount:        m.processed,
		ErrorCount:            m.errors,
		AverageProcessingTime: avg,
	}
}

// Healthy reports false only on sustained degradation: either the trailing
// error rate exceeds the configured fraction of processed events, or the
// dispatch latency has exceeded its ceiling for several consecutive
// batches. A single slow or failed batch never flips health.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slowStreak >= m.cfg.DegradedWindows {
		return false
	}

	m.trimErrorsLocked()
	recentErrors := int64(len(m.errorTimes))
	if recentErrors < minWindowErrors {
		return true
	}

	cutoff := m.now().Add(-errorWindow)
	var recentProcessed int64
	for _, s := range m.samples {
		if s.at.After(cutoff) {
			recentProcessed += int64(s.events)
		}
	}

	rate := float64(recentErrors) / float64(recentProcessed+recentErrors)
	return rate <= m.cfg.ErrorRateThreshold
}

// Throughput returns the observed events per second over the trailing
// throughput window.
func (m *Monitor) Throughput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-throughputWindow)
	var events int64
	for _, s := range m.samples {
		if s.at.After(cutoff) {
			events += int64(s.events)
		}
	}
	return float64(events) / throughputWindow.Seconds()
}

// RecommendedBatchSize suggests a max batch size proportional to recent
// throughput over the given accumulation window, clamped to
// [floor, ceiling]. Advisory only, never auto-applied: a consumer under
// memory pressure can ignore it.
func (m *Monitor) RecommendedBatchSize(window time.Duration, floor, ceiling int) int {
	target := int(m.Throughput() * window.Seconds())
	if target < floor {
		return floor
	}
	if target > ceiling {
		return ceiling
	}
	return target
}

// TipsFor derives backpressure recommendations from the current queue
// occupancy. queueLen is the ingress queue depth, queueCap its capacity,
// pending the number of buffered-but-unflushed events, and maxBatch the
// configured batch cap.
func (m *Monitor) TipsFor(queueLen, queueCap, pending, maxBatch int) Tips {
	if queueCap <= 0 {
		queueCap = 1
	}
	if maxBatch < 0 {
		maxBatch = 0
	}

	undelivered := queueLen + pending
	ratio := float64(undelivered) / float64(queueCap+maxBatch)
	if ratio > 1 {
		ratio = 1
	}
	queuePressure := float64(queueLen) / float64(queueCap)

	return Tips{
		ShouldFlushImmediately: float64(undelivered) >= flushHighWater*float64(queueCap),
		ShouldReduceBatchSize:  queuePressure >= reducePressure && ratio >= reducePressure,
		MemoryPressureRatio:    ratio,
	}
}
