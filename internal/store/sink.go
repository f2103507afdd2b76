package store

import (
	"context"
	"time"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/event"
	"github.com/memyselfandm/chronicle/internal/logging"
	"github.com/memyselfandm/chronicle/internal/metrics"
)

// insertTimeout bounds one durable write so a stalled database cannot
// back the subscriber queue up indefinitely.
const insertTimeout = 10 * time.Second

// BatchInserter is the narrow write interface the sink needs; *Repository
// implements it.
type BatchInserter interface {
	InsertBatch(ctx context.Context, events []event.Event) error
}

// Sink bridges the batcher's subscriber contract to the durable store.
type Sink struct {
	inserter BatchInserter
	log      *logging.Logger
}

// NewSink creates a Sink writing through the given inserter.
func NewSink(inserter BatchInserter, log *logging.Logger) *Sink {
	if log == nil {
		log = logging.Default()
	}
	return &Sink{
		inserter: inserter,
		log:      log.With(logging.FieldComponent, "store-sink"),
	}
}

// Attach subscribes the sink to a batcher and returns the unsubscribe
// function. Insert failures are counted and logged only: the durable
// store is a best-effort collaborator and must never corrupt or stall
// the engine.
func (s *Sink) Attach(b *batcher.Batcher) func() {
	return b.Subscribe(func(batch batcher.Batch) {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()

		start := time.Now()
		if err := s.inserter.InsertBatch(ctx, batch.Events); err != nil {
			metrics.StoreErrors.Inc()
			s.log.Error("durable insert failed",
				logging.FieldBatchID, batch.ID,
				logging.FieldBatchSize, batch.Size,
				logging.FieldError, err.Error())
			return
		}
		metrics.StoreInsertDuration.Observe(time.Since(start).Seconds())
	})
}
