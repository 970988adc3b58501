package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func renderContext(t *testing.T, globals map[string]string) *Context {
	t.Helper()
	flow := NewContext(testMessageEvent(t, "hi"), globals)
	flow.SetVariable("name", "alice")
	flow.SetVariable("count", float64(7))
	flow.SetVariable("flag", true)
	flow.SetVariable("user", map[string]any{"profile": map[string]any{"city": "Kyoto"}})
	flow.SetVariable("quote", `say "hi"`)
	flow.SetVariable("items", []any{"a", "b"})
	return flow
}

func TestRenderTemplate(t *testing.T) {
	flow := renderContext(t, map[string]string{"greeting": "hello"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no placeholders", "plain text", "plain text"},
		{"simple variable", "hi {{name}}", "hi alice"},
		{"whitespace tolerated", "hi {{  name  }}", "hi alice"},
		{"dotted path", "{{user.profile.city}}", "Kyoto"},
		{"global namespace", "{{global.greeting}} world", "hello world"},
		{"number formatting", "n={{count}}", "n=7"},
		{"bool formatting", "f={{flag}}", "f=true"},
		{"list renders as json", "{{items}}", `["a","b"]`},
		{"unresolved left verbatim", "x={{missing}}", "x={{missing}}"},
		{"unresolved global left verbatim", "{{global.nope}}", "{{global.nope}}"},
		{"json_safe filter", `{"msg":"{{quote | json_safe}}"}`, `{"msg":"say \"hi\""}`},
		{"unknown filter left verbatim", "{{name | shout}}", "{{name | shout}}"},
		{"multiple placeholders", "{{name}} x{{count}}", "alice x7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, flow.RenderTemplate(tt.in))
		})
	}
}

func TestRenderTemplate_NilGlobals(t *testing.T) {
	flow := NewContext(testMessageEvent(t, "hi"), nil)
	require.Equal(t, "{{global.key}}", flow.RenderTemplate("{{global.key}}"), "global lookups with no globals map resolve to nothing")
}

// TestRenderTemplate_JSONSafeRoundTrip is a property-based test using
// rapid. Any string value embedded in a JSON literal through the
// json_safe filter yields valid JSON that decodes back to the value,
// even when the value itself contains quotes, backslashes, or template
// delimiters.
func TestRenderTemplate_JSONSafeRoundTrip(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		value := rapid.String().Draw(r, "value")

		flow := NewContext(testMessageEvent(t, "hi"), nil)
		flow.SetVariable("v", value)

		rendered := flow.RenderTemplate(`{"msg":"{{v | json_safe}}"}`)
		var decoded struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal([]byte(rendered), &decoded); err != nil {
			r.Fatalf("rendered JSON does not parse: %v in %s", err, rendered)
		}
		if decoded.Msg != value {
			r.Fatalf("value changed through json_safe: %q -> %q", value, decoded.Msg)
		}
	})
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"bool", false, "false"},
		{"float drops trailing zeros", float64(3.50), "3.5"},
		{"whole float has no point", float64(12), "12"},
		{"int", 42, "42"},
		{"int64", int64(-9), "-9"},
		{"map as json", map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}
