package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/event"
	"github.com/memyselfandm/chronicle/internal/server"
)

// denyLimiter rejects every request; used to exercise the 429 path.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }
func (denyLimiter) Close() error                                { return nil }

type collector struct {
	mu      sync.Mutex
	batches []batcher.Batch
}

func (c *collector) collect(b batcher.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *collector) events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, b := range c.batches {
		out = append(out, b.Events...)
	}
	return out
}

func newTestBatcher(t *testing.T) *batcher.Batcher {
	t.Helper()
	b, err := batcher.New(batcher.Config{
		Window:        10 * time.Second,
		MaxBatchSize:  50,
		PreserveOrder: true,
		QueueSize:     100,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func postHooks(h *server.HookHandler, body string, authorize bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hooks", strings.NewReader(body))
	if authorize {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	rec := httptest.NewRecorder()
	h.HandleHooks(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) (text string, code int) {
	t.Helper()
	var resp struct {
		Text string `json:"text"`
		Code int    `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Text, resp.Code
}

func TestHandleHooks_RejectsMissingToken(t *testing.T) {
	h := server.NewHookHandler(newTestBatcher(t), nil, nil, nil)

	rec := postHooks(h, `{"hook_event_name":"stop"}`, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, code := decodeResponse(t, rec)
	assert.Equal(t, 4, code)
}

func TestHandleHooks_RejectsEmptyBody(t *testing.T) {
	h := server.NewHookHandler(newTestBatcher(t), nil, nil, nil)

	rec := postHooks(h, "", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, code := decodeResponse(t, rec)
	assert.Equal(t, 5, code)
}

func TestHandleHooks_RejectsMalformedBody(t *testing.T) {
	h := server.NewHookHandler(newTestBatcher(t), nil, nil, nil)

	rec := postHooks(h, "{not json", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, code := decodeResponse(t, rec)
	assert.Equal(t, 6, code)
}

func TestHandleHooks_RejectsNonPost(t *testing.T) {
	h := server.NewHookHandler(newTestBatcher(t), nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hooks", nil)
	rec := httptest.NewRecorder()
	h.HandleHooks(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHooks_RateLimited(t *testing.T) {
	h := server.NewHookHandler(newTestBatcher(t), nil, denyLimiter{}, nil)

	rec := postHooks(h, `{"hook_event_name":"stop"}`, true)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	_, code := decodeResponse(t, rec)
	assert.Equal(t, 10, code)
}

func TestHandleHooks_SingleEventReachesSubscribers(t *testing.T) {
	b := newTestBatcher(t)
	h := server.NewHookHandler(b, nil, nil, nil)

	c := &collector{}
	b.Subscribe(c.collect)

	body := `{"event_id":"evt-1","session_id":"sess-1","hook_event_name":"pre_tool_use","tool_name":"Read","duration_ms":42}`
	rec := postHooks(h, body, true)

	require.Equal(t, http.StatusOK, rec.Code)
	text, code := decodeResponse(t, rec)
	assert.Equal(t, "Success", text)
	assert.Equal(t, 0, code)

	b.Flush()
	require.Eventually(t, func() bool { return len(c.events()) == 1 }, time.Second, 5*time.Millisecond)

	got := c.events()[0]
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, event.TypePreToolUse, got.Type)
	assert.Equal(t, "Read", got.ToolName)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(42), *got.DurationMs)
}

func TestHandleHooks_NDJSONBatch(t *testing.T) {
	b := newTestBatcher(t)
	h := server.NewHookHandler(b, nil, nil, nil)

	c := &collector{}
	b.Subscribe(c.collect)

	body := strings.Join([]string{
		`{"event_id":"evt-1","session_id":"sess-1","hook_event_name":"session_start"}`,
		``,
		`{"event_id":"evt-2","session_id":"sess-1","hook_event_name":"user_prompt_submit","prompt":"hello"}`,
		`{"event_id":"evt-3","session_id":"sess-1","hook_event_name":"stop"}`,
	}, "\n")

	rec := postHooks(h, body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	b.Flush()
	require.Eventually(t, func() bool { return len(c.events()) == 3 }, time.Second, 5*time.Millisecond)

	got := c.events()
	assert.Equal(t, "evt-1", got[0].ID)
	assert.Equal(t, "evt-2", got[1].ID)
	assert.Equal(t, "evt-3", got[2].ID)
	assert.Equal(t, event.TypeUserPromptSubmit, got[1].Type)
}

func TestHandleHooks_UnknownHookIsAcceptedAsUnclassified(t *testing.T) {
	b := newTestBatcher(t)
	h := server.NewHookHandler(b, nil, nil, nil)

	c := &collector{}
	b.Subscribe(c.collect)

	rec := postHooks(h, `{"event_id":"evt-1","session_id":"sess-1","hook_event_name":"future_hook"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	b.Flush()
	require.Eventually(t, func() bool { return len(c.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, event.TypeUnclassified, c.events()[0].Type)
}
