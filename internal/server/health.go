package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/memyselfandm/chronicle/internal/batcher"
)

// HealthHandler reports engine liveness and pipeline readiness.
type HealthHandler struct {
	batcher *batcher.Batcher
	ready   func(ctx context.Context) error
}

// NewHealthHandler wires the health endpoints. The ready func probes
// downstream dependencies (the durable store); nil means no dependency to
// probe.
func NewHealthHandler(b *batcher.Batcher, ready func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{batcher: b, ready: ready}
}

// Health reports whether the engine is free of sustained degradation.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !h.batcher.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Ready reports whether the service can accept traffic, including the
// durable store when one is attached, plus a counters snapshot.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status": "ready",
		"stats":  h.batcher.Metrics(),
	})
}
