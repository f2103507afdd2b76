package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldComponent  = "component"
	FieldSessionID  = "session_id"
	FieldEventID    = "event_id"
	FieldEventType  = "event_type"
	FieldBatchID    = "batch_id"
	FieldBatchSize  = "batch_size"
	FieldSubscriber = "subscriber"
	FieldIP         = "ip"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
)

// Component returns a slog attribute naming the pipeline component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// SessionID returns a slog attribute for the session ID.
func SessionID(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// BatchID returns a slog attribute for a dispatched batch ID.
func BatchID(id string) slog.Attr {
	return slog.String(FieldBatchID, id)
}

// Err returns a slog attribute for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
