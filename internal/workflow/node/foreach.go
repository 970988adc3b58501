package node

import (
	"context"
	"sort"
	"strings"

	"botweave/internal/workflow"
)

// loopState tracks one foreach's progress across re-entries. It lives in
// the variable scope under an engine-internal key so nested loops over
// different lists keep separate state.
type loopState struct {
	index int
	total int
	items []any
}

// ForeachNode iterates a list variable, running the loop body once per
// element. Each execution either emits the next element together with a
// jump to the body, or reports completion.
type ForeachNode struct{}

func (n *ForeachNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "foreach",
		Name:        "Foreach",
		Description: "Runs the loop body once per list element",
		Category:    "control",
		Inputs: []workflow.Port{
			{Name: "list", Label: "list - variable to iterate", Type: "array", Required: true},
		},
		Outputs: []workflow.Port{
			{Name: "loop_index", Label: "loop_index - current index", Type: "integer"},
			{Name: "loop_item", Label: "loop_item - current element", Type: "any"},
			{Name: "loop_total", Label: "loop_total - element count", Type: "integer"},
		},
	}
}

func (n *ForeachNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	listName := strings.TrimSpace(cfg.Str("list_variable"))
	itemName := strings.TrimSpace(cfg.Str("item_variable"))
	if itemName == "" {
		itemName = "item"
	}
	body := strings.TrimSpace(cfg.Str("loop_body"))

	stateKey := "_foreach_state_" + listName + "_" + itemName
	state, _ := flow.Lookup(stateKey)
	st, resumed := state.(*loopState)

	if !resumed {
		raw, ok := flow.Lookup(listName)
		if !ok || raw == nil {
			return errResult("list variable not found: " + listName), nil
		}
		items, ok := materializeList(raw)
		if !ok {
			return errResult("variable is not a list or map: " + listName), nil
		}
		if len(items) == 0 {
			return withNext(workflow.Result{"success": true, "loop_total": 0}, cfg), nil
		}
		if body == "" {
			return errResult("loop body is not configured"), nil
		}
		st = &loopState{total: len(items), items: items}
		flow.SetVariable(stateKey, st)
	}

	if st.index >= st.total {
		delete(flow.Variables, stateKey)
		return withNext(workflow.Result{"success": true, "loop_total": st.total}, cfg), nil
	}

	item := st.items[st.index]
	flow.SetVariable(itemName, item)
	flow.SetVariable("loop_index", st.index)
	flow.SetVariable("loop_item", item)
	flow.SetVariable("loop_total", st.total)

	res := workflow.Result{
		"success":     true,
		"loop":        true,
		"loop_body":   body,
		"loop_return": true,
		"delay":       cfg.Float("delay", 0),
		"loop_index":  st.index,
		"loop_total":  st.total,
	}
	if end := cfg.Str("loop_end"); end != "" {
		res["loop_end"] = end
	}
	st.index++
	return res, nil
}

// materializeList converts an iterable variable value into a slice.
// Maps become sorted {key, value} entries so iteration order is stable
// across runs.
func materializeList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		return items, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = map[string]any{"key": k, "value": t[k]}
		}
		return items, true
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = map[string]any{"key": k, "value": t[k]}
		}
		return items, true
	default:
		return nil, false
	}
}
