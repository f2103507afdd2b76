package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/memyselfandm/chronicle/internal/event"
	"github.com/memyselfandm/chronicle/internal/feed"
)

// FeedHandler serves snapshots of the bounded live feed.
type FeedHandler struct {
	store *feed.Store
}

// NewFeedHandler wires the feed snapshot endpoint.
func NewFeedHandler(store *feed.Store) *FeedHandler {
	return &FeedHandler{store: store}
}

type feedResponse struct {
	Events  []event.Event `json:"events"`
	Count   int           `json:"count"`
	Evicted int64         `json:"evicted"`
}

// HandleFeed returns the current feed contents, oldest first. An optional
// limit query parameter keeps only the most recent N events.
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, errInvalidEvent, http.StatusMethodNotAllowed)
		return
	}

	events := h.store.Snapshot()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			sendError(w, errInvalidEvent, http.StatusBadRequest)
			return
		}
		if limit < len(events) {
			events = events[len(events)-limit:]
		}
	}

	if events == nil {
		events = []event.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feedResponse{
		Events:  events,
		Count:   len(events),
		Evicted: h.store.Evicted(),
	})
}
