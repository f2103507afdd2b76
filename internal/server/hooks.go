// Package server exposes the HTTP collector API: hook ingestion, the live
// feed snapshot and stream, and the health and metrics endpoints.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/event"
	"github.com/memyselfandm/chronicle/internal/logging"
	"github.com/memyselfandm/chronicle/internal/middleware"
	"github.com/memyselfandm/chronicle/internal/normalizer"
	"github.com/memyselfandm/chronicle/internal/ratelimit"
)

// HookHandler accepts hook payloads from the instrumentation layer and
// feeds them into the batching engine.
type HookHandler struct {
	batcher     *batcher.Batcher
	normalizers *normalizer.Registry
	limiter     ratelimit.RateLimiter
	log         *logging.Logger
}

// NewHookHandler wires the ingestion endpoint. A nil limiter disables rate
// limiting; a nil registry falls back to the default normalizer set.
func NewHookHandler(b *batcher.Batcher, reg *normalizer.Registry, limiter ratelimit.RateLimiter, log *logging.Logger) *HookHandler {
	if reg == nil {
		reg = normalizer.Default()
	}
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if log == nil {
		log = logging.Default()
	}
	return &HookHandler{
		batcher:     b,
		normalizers: reg,
		limiter:     limiter,
		log:         log.With(logging.FieldComponent, "hook-handler"),
	}
}

// HandleHooks ingests one hook payload or an NDJSON batch of them. The
// engine absorbs events asynchronously, so the handler answers as soon as
// the payloads are normalized and queued; only sustained memory pressure
// turns producers away.
func (h *HookHandler) HandleHooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, errInvalidEvent, http.StatusMethodNotAllowed)
		return
	}

	token := extractToken(r.Header.Get("Authorization"))
	if token == "" {
		sendError(w, errUnauthorized, http.StatusUnauthorized)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), token)
	if err != nil {
		// A broken limiter backend must not take ingestion down with it.
		h.log.WarnContext(r.Context(), "rate limiter check failed, allowing request",
			logging.FieldError, err.Error())
	} else if !allowed {
		sendError(w, errRateLimited, http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, errInvalidEvent, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		sendError(w, errNoData, http.StatusBadRequest)
		return
	}

	payloads, ok := parsePayloads(body)
	if !ok {
		sendError(w, errInvalidEvent, http.StatusBadRequest)
		return
	}

	tips := h.batcher.OptimizationTips()
	if tips.MemoryPressureRatio >= 1 {
		h.log.WarnContext(r.Context(), "ingestion rejected under memory pressure",
			logging.FieldIP, middleware.ClientIP(r))
		sendError(w, errServerBusy, http.StatusServiceUnavailable)
		return
	}

	raws := make([]event.Raw, 0, len(payloads))
	for _, p := range payloads {
		raw, ok := h.normalizers.Normalize(p)
		if !ok {
			sendError(w, errInvalidEvent, http.StatusBadRequest)
			return
		}
		raws = append(raws, raw)
	}
	h.batcher.AddEvents(raws)

	h.log.DebugContext(r.Context(), "hooks ingested",
		logging.FieldIP, middleware.ClientIP(r),
		"count", len(raws))
	sendSuccess(w)
}

// parsePayloads decodes the request body as either a single JSON payload
// or newline-delimited JSON.
func parsePayloads(body []byte) ([]*normalizer.Payload, bool) {
	var single normalizer.Payload
	if err := json.Unmarshal(body, &single); err == nil {
		return []*normalizer.Payload{&single}, true
	}

	var payloads []*normalizer.Payload
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var p normalizer.Payload
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, false
		}
		payloads = append(payloads, &p)
	}
	return payloads, len(payloads) > 0
}
