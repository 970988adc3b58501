package workflow

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// exprRe matches one {{ expression }} placeholder. Expressions are a
// variable path optionally followed by pipe-separated filters.
var exprRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// globalPrefix namespaces global variables inside templates.
const globalPrefix = "global."

// RenderTemplate substitutes {{expr}} placeholders with values from the
// variable scope and the global.* namespace. A placeholder that cannot
// be resolved is left verbatim so misconfigured workflows surface the
// raw expression instead of silently emitting nothing.
func (c *Context) RenderTemplate(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return exprRe.ReplaceAllStringFunc(s, func(m string) string {
		expr := strings.TrimSpace(m[2 : len(m)-2])
		segments := strings.Split(expr, "|")
		value, ok := c.resolveExpr(strings.TrimSpace(segments[0]))
		if !ok {
			return m
		}
		out := anyToString(value)
		for _, filter := range segments[1:] {
			switch strings.TrimSpace(filter) {
			case "json_safe":
				out = jsonSafe(out)
			default:
				return m
			}
		}
		return out
	})
}

// resolveExpr resolves a template path against the globals namespace or
// the variable scope.
func (c *Context) resolveExpr(path string) (any, bool) {
	if rest, ok := strings.CutPrefix(path, globalPrefix); ok {
		v, found := c.globals[rest]
		return v, found
	}
	return c.Lookup(path)
}

// jsonSafe escapes a string for embedding inside a JSON string literal:
// the JSON encoding of the value with its surrounding quotes stripped.
func jsonSafe(s string) string {
	if s == "" {
		return ""
	}
	b, err := json.Marshal(s)
	if err != nil {
		return s
	}
	return string(b[1 : len(b)-1])
}

// Stringify renders a value the way template interpolation does:
// scalars in their canonical text forms, composites as JSON. Nodes use
// it to normalize variable values before string comparison.
func Stringify(v any) string {
	return anyToString(v)
}

// anyToString renders a value for template output. Scalars use their
// canonical text forms; composites are JSON-encoded.
func anyToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return ""
	}
}
