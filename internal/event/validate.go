package event

import "time"

// Validate checks the structural preconditions on a raw event and converts
// it into its internal form. Inputs lacking an ID or a type string, or
// carrying a negative duration, are rejected. Rejection is silent by
// contract: invalid input from an untrusted producer is expected noise, so
// the caller counts rejections instead of surfacing an error.
func Validate(raw Raw) (Event, bool) {
	if raw.ID == "" || raw.Type == "" {
		return Event{}, false
	}
	if raw.DurationMs != nil && *raw.DurationMs < 0 {
		return Event{}, false
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return Event{
		ID:         raw.ID,
		SessionID:  raw.SessionID,
		Type:       ParseType(raw.Type),
		Timestamp:  ts,
		Metadata:   raw.Metadata,
		ToolName:   raw.ToolName,
		DurationMs: raw.DurationMs,
	}, true
}

// Valid reports whether an already-accepted event still satisfies the
// structural preconditions. Downstream consumers re-check dispatched events
// as defense in depth against a misbehaving subscriber path.
func Valid(e Event) bool {
	if e.ID == "" || e.Type == "" {
		return false
	}
	if e.DurationMs != nil && *e.DurationMs < 0 {
		return false
	}
	return true
}
