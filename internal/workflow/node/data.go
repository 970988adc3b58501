package node

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"botweave/internal/workflow"
)

// SetVariableNode renders a template and stores the result under the
// configured variable name.
type SetVariableNode struct{}

func (n *SetVariableNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "set_variable",
		Name:        "Set Variable",
		Description: "Sets or overwrites a context variable",
		Category:    "data",
	}
}

func (n *SetVariableNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	name := cfg.Str("variable_name")
	value := flow.RenderTemplate(cfg.Str("variable_value"))
	flow.SetVariable(name, value)
	return workflow.Result{"success": true, "variable": name, "value": value}, nil
}

// StringOperationNode applies a text transformation to a variable and
// stores the outcome. param1 and param2 carry the operation-specific
// arguments: search text, regex pattern, replacement, slice range, or
// separator.
type StringOperationNode struct{}

func (n *StringOperationNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "string_operation",
		Name:        "String Operation",
		Description: "Transforms a string variable",
		Category:    "data",
		Inputs: []workflow.Port{
			{Name: "input", Label: "input - variable to transform", Type: "string", Required: true},
		},
		Outputs: []workflow.Port{
			{Name: "output", Label: "output - transformed value", Type: "string"},
		},
	}
}

func (n *StringOperationNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	input := workflow.Stringify(flow.GetVariable(cfg.Str("input"), ""))
	op := cfg.Str("operation")
	if op == "" {
		op = "trim"
	}
	param1 := cfg.Str("param1")
	param2 := cfg.Str("param2")
	saveTo := cfg.Str("save_to")
	if saveTo == "" {
		saveTo = "output"
	}

	var output any = input
	switch op {
	case "trim":
		output = strings.TrimSpace(input)
	case "upper":
		output = strings.ToUpper(input)
	case "lower":
		output = strings.ToLower(input)
	case "replace":
		if param1 != "" {
			output = strings.ReplaceAll(input, param1, param2)
		}
	case "regex_extract":
		if param1 != "" {
			re, err := regexp.Compile(param1)
			if err != nil {
				return errResult("invalid pattern: " + err.Error()), nil
			}
			output = extractMatch(re, input)
		}
	case "regex_replace":
		if param1 != "" {
			re, err := regexp.Compile(param1)
			if err != nil {
				return errResult("invalid pattern: " + err.Error()), nil
			}
			output = re.ReplaceAllString(input, param2)
		}
	case "substring":
		if param1 != "" {
			sub, err := slice(input, param1)
			if err != nil {
				return errResult(err.Error()), nil
			}
			output = sub
		}
	case "split":
		if param1 != "" {
			output = strings.Split(input, param1)
		}
	}

	flow.SetVariable(saveTo, output)
	return workflow.Result{"success": true, "output": output}, nil
}

// extractMatch returns the first capture group when the pattern has
// one, the whole match otherwise, and "" when nothing matches.
func extractMatch(re *regexp.Regexp, input string) string {
	m := re.FindStringSubmatch(input)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

// slice cuts input by rune positions. spec is "start,end" or "start";
// negative positions count from the end and out-of-range positions
// clamp.
func slice(input, spec string) (string, error) {
	runes := []rune(input)
	parts := strings.Split(spec, ",")

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", &sliceError{spec}
	}
	end := len(runes)
	if len(parts) > 1 {
		end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return "", &sliceError{spec}
		}
	}

	start = clampIndex(start, len(runes))
	end = clampIndex(end, len(runes))
	if start >= end {
		return "", nil
	}
	return string(runes[start:end]), nil
}

func clampIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

type sliceError struct{ spec string }

func (e *sliceError) Error() string { return "invalid substring range: " + e.spec }
