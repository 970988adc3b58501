package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"botweave/internal/event"
	"botweave/internal/message"
)

// Context carries per-execution state: the triggering event, the mutable
// variables map, the response slot, and a snapshot of global variables
// taken when the run started. A Context is owned by exactly one engine
// run and is not safe for concurrent use.
type Context struct {
	// Event is the occurrence that triggered this run.
	Event event.Event

	// Variables is the shared variable scope nodes read and write.
	// Keys with a leading underscore are engine-internal and excluded
	// from debug snapshots.
	Variables map[string]any

	globals   map[string]string
	response  message.Message
	responded bool
}

// NewContext builds a fresh execution context for an event. globals is
// the global-variable snapshot used by template rendering; nil means no
// globals are visible to this run.
func NewContext(ev event.Event, globals map[string]string) *Context {
	vars := make(map[string]any)
	if raw := ev.Raw(); raw != nil {
		vars["raw_data"] = raw
	}
	return &Context{Event: ev, Variables: vars, globals: globals}
}

// SetVariable stores a value in the variable scope.
func (c *Context) SetVariable(key string, value any) {
	c.Variables[key] = value
}

// Lookup resolves a variable name. A literal key match wins; otherwise
// a dotted name descends through nested maps (`response_json.code`).
func (c *Context) Lookup(key string) (any, bool) {
	if v, ok := c.Variables[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	parts := strings.Split(key, ".")
	current, ok := c.Variables[parts[0]]
	if !ok || current == nil {
		return nil, false
	}
	for _, part := range parts[1:] {
		switch m := current.(type) {
		case map[string]any:
			current = m[part]
		case map[string]string:
			v, exists := m[part]
			if !exists {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
		if current == nil {
			return nil, false
		}
	}
	return current, true
}

// GetVariable resolves a variable name like Lookup and falls back to
// def when the name cannot be resolved.
func (c *Context) GetVariable(key string, def any) any {
	if v, ok := c.Lookup(key); ok {
		return v
	}
	return def
}

// Global returns one global variable from the run's snapshot.
func (c *Context) Global(key string) (string, bool) {
	v, ok := c.globals[key]
	return v, ok
}

// SetResponse records the outbound message for this run and marks the
// event handled. A later call replaces the earlier message.
func (c *Context) SetResponse(msg message.Message) {
	c.response = msg
	c.responded = true
}

// MarkHandled flags the event handled without queuing an outbound
// message, for nodes whose side effect is the whole point.
func (c *Context) MarkHandled() {
	c.responded = true
}

// Response returns the outbound message and whether the run handled the
// event. The message may be nil even when handled is true.
func (c *Context) Response() (message.Message, bool) {
	return c.response, c.responded
}

// ClearResponse resets the response slot.
func (c *Context) ClearResponse() {
	c.response = nil
	c.responded = false
}

// snapshotLimit caps the string fallback for values the debug recorder
// cannot serialize.
const snapshotLimit = 500

// Snapshot copies the variable scope for debug recording. Engine-internal
// keys (leading underscore) are skipped; values that do not survive a
// JSON round trip are replaced by a truncated string form.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.Variables))
	for key, value := range c.Variables {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if _, err := json.Marshal(value); err != nil {
			s := fmt.Sprintf("%v", value)
			if len(s) > snapshotLimit {
				s = s[:snapshotLimit]
			}
			out[key] = s
			continue
		}
		out[key] = value
	}
	return out
}
