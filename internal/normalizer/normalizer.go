// Package normalizer converts raw hook payloads from the instrumentation
// layer into the pipeline's pre-validation event shape. Each hook type has
// its own normalizer; unknown hooks fall through to a passthrough that the
// validator classifies as unclassified rather than rejecting.
package normalizer

import (
	"github.com/google/uuid"

	"github.com/memyselfandm/chronicle/internal/event"
)

// Normalizer converts one hook payload into a raw event.
type Normalizer interface {
	Normalize(p *Payload) event.Raw
	Supports(hookEventName string) bool
}

// Registry holds ordered normalizers and finds the first match for a hook.
type Registry struct {
	items []Normalizer
}

// NewRegistry constructs a registry with the provided normalizers, matched
// in order.
func NewRegistry(items ...Normalizer) *Registry {
	return &Registry{items: items}
}

// Default returns the registry covering every hook the instrumentation
// layer emits, with a passthrough fallback last.
func Default() *Registry {
	return NewRegistry(
		ToolNormalizer{},
		PromptNormalizer{},
		LifecycleNormalizer{},
		PassthroughNormalizer{},
	)
}

// Find returns the first normalizer that supports the hook, or nil when
// none matches.
func (r *Registry) Find(hookEventName string) Normalizer {
	if r == nil {
		return nil
	}
	for _, n := range r.items {
		if n.Supports(hookEventName) {
			return n
		}
	}
	return nil
}

// Normalize runs the matching normalizer over the payload. With the default
// registry this never fails: the passthrough catches unknown hooks.
func (r *Registry) Normalize(p *Payload) (event.Raw, bool) {
	n := r.Find(p.HookEventName)
	if n == nil {
		return event.Raw{}, false
	}
	return n.Normalize(p), true
}

// base maps the envelope fields shared by every hook shape. A payload
// without an event id gets a generated one; uniqueness upstream is a
// producer precondition, not something the engine enforces.
func base(p *Payload) event.Raw {
	id := p.EventID
	if id == "" {
		id = uuid.New().String()
	}
	return event.Raw{
		ID:        id,
		SessionID: p.SessionID,
		Type:      p.HookEventName,
		Timestamp: p.EventTime(),
		Metadata:  p.Data,
	}
}

// ToolNormalizer handles tool invocation hooks, lifting the tool name and
// invocation duration out of the open payload map.
type ToolNormalizer struct{}

func (ToolNormalizer) Supports(hook string) bool {
	return hook == string(event.TypePreToolUse) || hook == string(event.TypePostToolUse)
}

func (ToolNormalizer) Normalize(p *Payload) event.Raw {
	raw := base(p)
	if v, ok := p.Data["tool_name"].(string); ok {
		raw.ToolName = v
	}
	if v, ok := p.Data["duration_ms"].(float64); ok {
		d := int64(v)
		raw.DurationMs = &d
	}
	return raw
}

// PromptNormalizer handles prompt submission hooks. The prompt text itself
// stays in the open metadata map; the engine never inspects it.
type PromptNormalizer struct{}

func (PromptNormalizer) Supports(hook string) bool {
	return hook == string(event.TypeUserPromptSubmit)
}

func (PromptNormalizer) Normalize(p *Payload) event.Raw {
	return base(p)
}

// LifecycleNormalizer handles session lifecycle and notification hooks.
type LifecycleNormalizer struct{}

func (LifecycleNormalizer) Supports(hook string) bool {
	switch event.Type(hook) {
	case event.TypeSessionStart, event.TypeStop, event.TypeSubagentStop,
		event.TypePreCompact, event.TypeNotification, event.TypeError:
		return true
	}
	return false
}

func (LifecycleNormalizer) Normalize(p *Payload) event.Raw {
	return base(p)
}

// PassthroughNormalizer accepts any hook so unknown payloads flow through
// as unclassified events instead of being dropped at the edge.
type PassthroughNormalizer struct{}

func (PassthroughNormalizer) Supports(string) bool { return true }

func (PassthroughNormalizer) Normalize(p *Payload) event.Raw {
	return base(p)
}
