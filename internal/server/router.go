package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memyselfandm/chronicle/internal/middleware"
)

// NewRouter constructs a ServeMux with the collector API routes registered.
func NewRouter(hooks *HookHandler, feed *FeedHandler, stream *StreamHandler, health *HealthHandler) http.Handler {
	mux := http.NewServeMux()

	// Collector API
	mux.HandleFunc("/api/v1/hooks", hooks.HandleHooks)
	mux.HandleFunc("/api/v1/feed", feed.HandleFeed)
	mux.HandleFunc("/api/v1/stream", stream.HandleStream)

	// Health endpoints
	mux.HandleFunc("/healthz", health.Health)
	mux.HandleFunc("/readyz", health.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
