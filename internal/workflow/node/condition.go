package node

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"botweave/internal/workflow"
)

// ConditionNode evaluates a comparison and steers the run to the true
// or false branch. Simple mode compares one variable; advanced mode
// combines one condition per line with AND/OR logic.
type ConditionNode struct{}

func (n *ConditionNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "condition",
		Name:        "Condition",
		Description: "Branches on a comparison result",
		Category:    "logic",
		Inputs: []workflow.Port{
			{Name: "variable_name", Label: "variable_name - value under test", Type: "string", Required: true},
			{Name: "compare_value", Label: "compare_value - comparison target", Type: "string"},
		},
		Outputs: []workflow.Port{
			{Name: "result", Label: "result - evaluation outcome", Type: "boolean"},
		},
	}
}

func (n *ConditionNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	var matched bool
	if cfg.Str("mode") == "advanced" {
		matched = n.evaluateAdvanced(flow, cfg)
	} else {
		matched = n.evaluateSimple(flow, cfg)
	}

	flow.SetVariable("result", matched)

	branch := cfg.Str("true_branch")
	if !matched {
		branch = cfg.Str("false_branch")
	}
	res := workflow.Result{"success": true, "result": matched}
	if branch != "" {
		res["next_node"] = branch
	}
	if cfg.Str("mode") != "advanced" {
		res["stop_sequence"] = cfg.Bool("stop_after_branch")
	}
	return res, nil
}

// ShouldBreak halts the sequence when the condition failed and no false
// branch catches it, turning an unbranched condition into a gate.
func (n *ConditionNode) ShouldBreak(res workflow.Result) bool {
	return !res.Bool("result") && res.Str("next_node") == ""
}

func (n *ConditionNode) evaluateSimple(flow *workflow.Context, cfg workflow.Config) bool {
	op := cfg.Str("condition_type")
	if op == "" {
		op = "equals"
	}
	left := workflow.Stringify(flow.GetVariable(cfg.Str("variable_name"), ""))
	right := flow.RenderTemplate(cfg.Str("compare_value"))
	return evaluateOperator(left, op, right)
}

// evaluateAdvanced combines one condition per line. Lines are
// "variable|operator|value"; blank lines and # comments are skipped,
// as are lines without an operator. No valid lines means true.
func (n *ConditionNode) evaluateAdvanced(flow *workflow.Context, cfg workflow.Config) bool {
	anyMode := strings.EqualFold(cfg.Str("logic_type"), "OR")

	evaluated := false
	for _, line := range strings.Split(cfg.Str("conditions"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		op := strings.TrimSpace(parts[1])
		value := ""
		if len(parts) > 2 {
			value = strings.TrimSpace(parts[2])
		}

		left := n.leftValue(flow, name)
		right := flow.RenderTemplate(value)
		ok := evaluateOperator(left, op, right)

		evaluated = true
		if anyMode && ok {
			return true
		}
		if !anyMode && !ok {
			return false
		}
	}
	if !evaluated {
		return true
	}
	return !anyMode
}

// leftValue resolves the left-hand side of an advanced condition. Bare
// variable names resolve directly; anything else renders as a template
// so literals and {{expr}} forms still work.
func (n *ConditionNode) leftValue(flow *workflow.Context, name string) string {
	if v, ok := flow.Lookup(name); ok {
		return workflow.Stringify(v)
	}
	return flow.RenderTemplate(name)
}

func evaluateOperator(left, op, right string) bool {
	switch op {
	case "equals":
		return left == right
	case "not_equals":
		return left != right
	case "contains":
		return strings.Contains(left, right)
	case "not_contains":
		return !strings.Contains(left, right)
	case "starts_with":
		return strings.HasPrefix(left, right)
	case "ends_with":
		return strings.HasSuffix(left, right)
	case "greater_than":
		l, errL := strconv.ParseFloat(left, 64)
		r, errR := strconv.ParseFloat(right, 64)
		return errL == nil && errR == nil && l > r
	case "less_than":
		l, errL := strconv.ParseFloat(left, 64)
		r, errR := strconv.ParseFloat(right, 64)
		return errL == nil && errR == nil && l < r
	case "is_empty":
		return strings.TrimSpace(left) == ""
	case "is_not_empty":
		return strings.TrimSpace(left) != ""
	case "regex":
		re, err := regexp.Compile(right)
		if err != nil {
			return false
		}
		return re.MatchString(left)
	default:
		return false
	}
}
