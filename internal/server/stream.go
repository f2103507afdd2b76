package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/logging"
	"github.com/memyselfandm/chronicle/internal/metrics"
	"github.com/memyselfandm/chronicle/internal/middleware"
)

const (
	streamQueueSize   = 16
	heartbeatInterval = 15 * time.Second
)

// StreamHandler pushes dispatched batches to clients over server-sent
// events. Each connection is its own engine subscriber; a slow client
// drops batches instead of stalling the dispatcher.
type StreamHandler struct {
	batcher *batcher.Batcher
	log     *logging.Logger
}

// NewStreamHandler wires the live stream endpoint.
func NewStreamHandler(b *batcher.Batcher, log *logging.Logger) *StreamHandler {
	if log == nil {
		log = logging.Default()
	}
	return &StreamHandler{
		batcher: b,
		log:     log.With(logging.FieldComponent, "stream-handler"),
	}
}

// HandleStream serves one SSE connection until the client disconnects.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, errInvalidEvent, http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Bridge the subscriber callback onto this connection's goroutine.
	// The callback must never block the dispatcher, so a full queue
	// drops the batch and counts it.
	batches := make(chan batcher.Batch, streamQueueSize)
	unsubscribe := h.batcher.Subscribe(func(b batcher.Batch) {
		select {
		case batches <- b:
		default:
			metrics.StreamDropped.Inc()
		}
	})
	defer unsubscribe()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ip := middleware.ClientIP(r)
	h.log.InfoContext(r.Context(), "stream client connected", logging.FieldIP, ip)
	defer h.log.InfoContext(r.Context(), "stream client disconnected", logging.FieldIP, ip)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case batch := <-batches:
			data, err := json.Marshal(batch)
			if err != nil {
				h.log.ErrorContext(r.Context(), "failed to encode batch",
					logging.FieldBatchID, batch.ID,
					logging.FieldError, err.Error())
				continue
			}
			fmt.Fprintf(w, "event: batch\ndata: %s\n\n", data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
