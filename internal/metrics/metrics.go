// Package metrics exposes the Prometheus collectors for the event pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_events_total",
			Help: "Total number of events received, by acceptance status",
		},
		[]string{"status"},
	)

	// Batcher metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronicle_batcher_queue_depth",
			Help: "Current depth of the batcher ingress queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronicle_batcher_queue_capacity",
			Help: "Maximum capacity of the batcher ingress queue",
		},
	)

	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_batcher_batches_total",
			Help: "Total number of batches dispatched to subscribers",
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chronicle_batcher_batch_size",
			Help:    "Number of events per dispatched batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chronicle_batcher_flush_duration_seconds",
			Help:    "Duration of batch dispatch to all subscribers in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SubscriberErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_batcher_subscriber_errors_total",
			Help: "Total number of recovered subscriber callback failures",
		},
	)

	// Feed store metrics
	FeedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronicle_feed_events",
			Help: "Number of events currently held in the bounded feed store",
		},
	)

	FeedEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_feed_evicted_total",
			Help: "Total number of events evicted from the feed store",
		},
	)

	// Durable store metrics
	StoreInsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chronicle_store_insert_duration_seconds",
			Help:    "Duration of durable store batch inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_store_errors_total",
			Help: "Total number of durable store insert failures",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"token"},
	)

	// Live stream metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronicle_stream_clients",
			Help: "Number of connected live feed stream clients",
		},
	)

	StreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_stream_dropped_total",
			Help: "Total number of batches dropped on slow stream clients",
		},
	)
)
