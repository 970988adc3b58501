// Package workflow implements the node-based execution engine: parsed
// definitions, the interpreter loop, the precompiled-engine cache, global
// variables, and per-run debug traces. Node implementations live in the
// node subpackage and register themselves against the Registry defined
// here.
package workflow

import (
	"context"
	"strconv"
)

// Port describes one declared input or output variable of a node kind.
// The management API serves these so the editor can offer variable
// pickers; the engine uses output ports for auto-capture.
type Port struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Meta describes a node kind.
type Meta struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Inputs      []Port `json:"inputs"`
	Outputs     []Port `json:"outputs"`
}

// Config is the per-step configuration block from a workflow definition.
// Values come from decoded JSON, so numbers are float64 and nested
// structures are map[string]any / []any.
type Config map[string]any

// Str returns the string value for key, rendering non-string scalars
// through strconv. Missing or nil keys yield "".
func (c Config) Str(key string) string {
	return anyToString(c[key])
}

// Bool returns the boolean value for key. String forms "true" and "1"
// count as true. Missing keys yield false.
func (c Config) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	default:
		return false
	}
}

// BoolOr returns the boolean value for key, or def when the key is
// absent. Editors persist checkboxes only after the first toggle, so
// several flags default to on.
func (c Config) BoolOr(key string, def bool) bool {
	if _, ok := c[key]; !ok {
		return def
	}
	return c.Bool(key)
}

// Float returns the numeric value for key, accepting float64, int, and
// numeric strings. Anything else yields def.
func (c Config) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Result is the map a node execution returns. Reserved keys steer the
// interpreter loop: loop, loop_body, loop_end, next_node, stop_sequence,
// delay. Everything else is data; keys matching declared output ports
// are auto-captured into the context.
type Result map[string]any

// Bool returns the boolean value for key, false when absent.
func (r Result) Bool(key string) bool {
	v, _ := r[key].(bool)
	return v
}

// Str returns the string value for key, "" when absent or non-string.
func (r Result) Str(key string) string {
	v, _ := r[key].(string)
	return v
}

// Float returns the numeric value for key, def when absent.
func (r Result) Float(key string, def float64) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Node is one executable step kind. Implementations are stateless;
// per-step state lives in the Config argument and the flow context.
type Node interface {
	// Meta returns the node kind's static description.
	Meta() Meta

	// Execute runs the node against the flow context. A returned error
	// marks the step failed; the engine records it and consults the
	// step's on_fail policy rather than aborting the run.
	Execute(ctx context.Context, flow *Context, cfg Config) (Result, error)
}

// Breaker is implemented by node kinds that can halt the step sequence
// based on their own result, such as end and keyword_trigger.
type Breaker interface {
	ShouldBreak(res Result) bool
}

// Registry maps node type identifiers to their implementations.
// Registration happens once at startup; lookups are read-only after
// that, so no locking is needed.
type Registry struct {
	nodes map[string]Node
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]Node)}
}

// Register adds a node implementation under its Meta().Type. A later
// registration for the same type replaces the earlier one.
func (r *Registry) Register(n Node) {
	typ := n.Meta().Type
	if _, exists := r.nodes[typ]; !exists {
		r.order = append(r.order, typ)
	}
	r.nodes[typ] = n
}

// Get returns the implementation for a node type.
func (r *Registry) Get(typ string) (Node, bool) {
	n, ok := r.nodes[typ]
	return n, ok
}

// Types returns the registered type identifiers in registration order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Describe returns the Meta of every registered node in registration
// order, for the node-catalog endpoint.
func (r *Registry) Describe() []Meta {
	out := make([]Meta, 0, len(r.order))
	for _, typ := range r.order {
		out = append(out, r.nodes[typ].Meta())
	}
	return out
}
