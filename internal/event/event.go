// Package event defines the atomic unit flowing through the batching
// pipeline and the structural validation applied before an event enters it.
package event

import "time"

// Type classifies an observability event emitted by the instrumentation
// layer. The enumeration is closed; unknown values map to TypeUnclassified
// instead of being rejected.
type Type string

const (
	TypeSessionStart     Type = "session_start"
	TypeNotification     Type = "notification"
	TypeError            Type = "error"
	TypePreToolUse       Type = "pre_tool_use"
	TypePostToolUse      Type = "post_tool_use"
	TypeUserPromptSubmit Type = "user_prompt_submit"
	TypeStop             Type = "stop"
	TypeSubagentStop     Type = "subagent_stop"
	TypePreCompact       Type = "pre_compact"
	TypeUnclassified     Type = "unclassified"
)

var knownTypes = map[Type]struct{}{
	TypeSessionStart:     {},
	TypeNotification:     {},
	TypeError:            {},
	TypePreToolUse:       {},
	TypePostToolUse:      {},
	TypeUserPromptSubmit: {},
	TypeStop:             {},
	TypeSubagentStop:     {},
	TypePreCompact:       {},
}

// ParseType maps a raw type string onto the enumeration.
func ParseType(s string) Type {
	t := Type(s)
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return TypeUnclassified
}

// Event is the internal representation of a single observability event.
// An Event is immutable once accepted; the engine never mutates payload
// fields after validation.
type Event struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Type       Type           `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
}

// Raw is the pre-validation shape handed over by the ingestion layer.
// The type field is an unchecked string and the timestamp may be zero.
type Raw struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Type       string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
}
