package normalizer

import (
	"encoding/json"
	"time"
)

// Payload is one raw hook delivery from the instrumentation layer. Hook
// payloads are flat JSON objects whose shape varies per hook; the known
// top-level fields are extracted and everything else lands in Data as an
// open map, never as a dynamically-typed object.
type Payload struct {
	EventID       string
	SessionID     string
	HookEventName string
	Time          *float64 // epoch seconds.milliseconds, producer-supplied
	Data          map[string]any
}

// UnmarshalJSON splits the flat hook object into the typed envelope fields
// and the open Data map.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	if v, ok := m["event_id"].(string); ok {
		p.EventID = v
		delete(m, "event_id")
	}
	if v, ok := m["session_id"].(string); ok {
		p.SessionID = v
		delete(m, "session_id")
	}
	if v, ok := m["hook_event_name"].(string); ok {
		p.HookEventName = v
		delete(m, "hook_event_name")
	}
	if v, ok := m["time"].(float64); ok {
		p.Time = &v
		delete(m, "time")
	}

	if len(m) > 0 {
		p.Data = m
	}
	return nil
}

// EventTime resolves the producer timestamp, or zero when absent so the
// validator stamps arrival time instead.
func (p *Payload) EventTime() time.Time {
	if p.Time == nil {
		return time.Time{}
	}
	sec := int64(*p.Time)
	nsec := int64((*p.Time - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
