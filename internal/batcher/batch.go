package batcher

import (
	"time"

	"github.com/memyselfandm/chronicle/internal/event"
)

// Batch is an ordered group of events dispatched together after a window
// closes. Every subscriber receives the same Batch value; the Events slice
// is never mutated after dispatch, and subscribers must treat it as
// read-only.
type Batch struct {
	ID          string        `json:"id"`
	Events      []event.Event `json:"events"`
	BatchedAt   time.Time     `json:"batched_at"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Size        int           `json:"size"`
}

// Metrics is a read-only view of the batcher's counters.
type Metrics struct {
	QueueLength           int           `json:"queue_length"`
	CurrentBatchSize      int           `json:"current_batch_size"`
	ProcessedCount        int64         `json:"processed_count"`
	ErrorCount            int64         `json:"error_count"`
	RejectedCount         int64         `json:"rejected_count"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}
