package batcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memyselfandm/chronicle/internal/event"
)

func bufEvent(id string, ts time.Time) event.Event {
	return event.Event{ID: id, SessionID: "sess-1", Type: event.TypeNotification, Timestamp: ts}
}

func TestOrderingBuffer_DrainEmptiesBuffer(t *testing.T) {
	base := time.Now()
	buf := &orderingBuffer{}

	buf.push(bufEvent("a", base))
	buf.push(bufEvent("b", base.Add(time.Millisecond)))
	require.Equal(t, 2, buf.len())

	out := buf.drain(false)
	assert.Len(t, out, 2)
	assert.Equal(t, 0, buf.len())
	assert.Empty(t, buf.drain(false))
}

func TestOrderingBuffer_DrainInsertionOrderWhenUnsorted(t *testing.T) {
	base := time.Now()
	buf := &orderingBuffer{}

	buf.push(bufEvent("late", base.Add(time.Second)))
	buf.push(bufEvent("early", base))

	out := buf.drain(false)
	require.Len(t, out, 2)
	assert.Equal(t, "late", out[0].ID)
	assert.Equal(t, "early", out[1].ID)
}

func TestOrderingBuffer_DrainSortsByTimestamp(t *testing.T) {
	base := time.Now()
	buf := &orderingBuffer{}

	buf.push(bufEvent("c", base.Add(2*time.Millisecond)))
	buf.push(bufEvent("a", base))
	buf.push(bufEvent("b", base.Add(time.Millisecond)))

	out := buf.drain(true)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestOrderingBuffer_TimestampTiesKeepArrivalOrder(t *testing.T) {
	ts := time.Now()
	buf := &orderingBuffer{}

	buf.push(bufEvent("first", ts))
	buf.push(bufEvent("second", ts))
	buf.push(bufEvent("third", ts))

	out := buf.drain(true)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{out[0].ID, out[1].ID, out[2].ID})
}
