package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"botweave/internal/workflow"
)

func foreachConfig(extra workflow.Config) workflow.Config {
	cfg := workflow.Config{
		"list_variable": "items",
		"item_variable": "it",
		"loop_body":     "s_body",
	}
	for k, v := range extra {
		cfg[k] = v
	}
	return cfg
}

func TestForeachNode_IteratesList(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", []any{"a", "b"})
	cfg := foreachConfig(nil)

	// First call: element 0.
	res, err := n.Execute(context.Background(), flow, cfg)
	require.NoError(t, err)
	require.True(t, res.Bool("loop"))
	require.Equal(t, "s_body", res.Str("loop_body"))
	require.Equal(t, 0, res["loop_index"])
	require.Equal(t, "a", flow.GetVariable("it", nil))
	require.Equal(t, "a", flow.GetVariable("loop_item", nil))
	require.Equal(t, 2, flow.GetVariable("loop_total", nil))

	// Second call: element 1.
	res, err = n.Execute(context.Background(), flow, cfg)
	require.NoError(t, err)
	require.True(t, res.Bool("loop"))
	require.Equal(t, 1, res["loop_index"])
	require.Equal(t, "b", flow.GetVariable("it", nil))

	// Third call: exhausted.
	res, err = n.Execute(context.Background(), flow, cfg)
	require.NoError(t, err)
	require.True(t, res.Bool("success"))
	require.False(t, res.Bool("loop"))
	require.Equal(t, 2, res["loop_total"])

	// A fourth call starts over from element 0.
	res, err = n.Execute(context.Background(), flow, cfg)
	require.NoError(t, err)
	require.True(t, res.Bool("loop"))
	require.Equal(t, 0, res["loop_index"], "exhaustion clears the loop state")
}

func TestForeachNode_StringSlice(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", []string{"x"})

	res, err := n.Execute(context.Background(), flow, foreachConfig(nil))
	require.NoError(t, err)
	require.True(t, res.Bool("loop"))
	require.Equal(t, "x", flow.GetVariable("it", nil))
}

func TestForeachNode_MapIteratesSortedEntries(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", map[string]any{"b": 2, "a": 1})
	cfg := foreachConfig(nil)

	res, err := n.Execute(context.Background(), flow, cfg)
	require.NoError(t, err)
	require.True(t, res.Bool("loop"))
	first, ok := flow.GetVariable("it", nil).(map[string]any)
	require.True(t, ok, "map elements become {key, value} entries")
	require.Equal(t, "a", first["key"], "map iteration is sorted by key")
	require.Equal(t, 1, first["value"])

	_, err = n.Execute(context.Background(), flow, cfg)
	require.NoError(t, err)
	second := flow.GetVariable("it", nil).(map[string]any)
	require.Equal(t, "b", second["key"])
}

func TestForeachNode_EmptyList(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", []any{})

	res, err := n.Execute(context.Background(), flow, foreachConfig(workflow.Config{"next_node": "s_after"}))
	require.NoError(t, err)
	require.True(t, res.Bool("success"))
	require.False(t, res.Bool("loop"))
	require.Equal(t, 0, res["loop_total"])
	require.Equal(t, "s_after", res.Str("next_node"))
}

func TestForeachNode_MissingList(t *testing.T) {
	n := &ForeachNode{}
	res, err := n.Execute(context.Background(), startedFlow(t, "onebot", "x"), foreachConfig(nil))
	require.NoError(t, err)
	require.False(t, res.Bool("success"))
	require.Contains(t, res.Str("error"), "list variable not found")
}

func TestForeachNode_NotAList(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", "scalar")

	res, err := n.Execute(context.Background(), flow, foreachConfig(nil))
	require.NoError(t, err)
	require.False(t, res.Bool("success"))
	require.Contains(t, res.Str("error"), "not a list or map")
}

func TestForeachNode_MissingBody(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", []any{"a"})

	res, err := n.Execute(context.Background(), flow, workflow.Config{
		"list_variable": "items",
		"item_variable": "it",
	})
	require.NoError(t, err)
	require.False(t, res.Bool("success"))
	require.Contains(t, res.Str("error"), "loop body is not configured")
}

func TestForeachNode_LoopEndPassthrough(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", []any{"a"})

	res, err := n.Execute(context.Background(), flow, foreachConfig(workflow.Config{"loop_end": "s_last"}))
	require.NoError(t, err)
	require.Equal(t, "s_last", res.Str("loop_end"))
}

// TestForeachNode_Traversal is a property-based test using rapid. For
// any list, repeated execution yields every element exactly once in
// order, then a final call reports exhaustion with the element count.
func TestForeachNode_Traversal(t *testing.T) {
	n := &ForeachNode{}
	itemGen := rapid.StringMatching(`[a-z0-9]{0,12}`)

	rapid.Check(t, func(r *rapid.T) {
		items := rapid.SliceOfN(itemGen, 1, 25).Draw(r, "items")

		flow := startedFlow(t, "onebot", "x")
		list := make([]any, len(items))
		for i, s := range items {
			list[i] = s
		}
		flow.SetVariable("items", list)
		cfg := foreachConfig(nil)

		for i, want := range items {
			res, err := n.Execute(context.Background(), flow, cfg)
			if err != nil {
				r.Fatalf("iteration %d: %v", i, err)
			}
			if !res.Bool("loop") {
				r.Fatalf("loop ended after %d of %d elements", i, len(items))
			}
			if got := res["loop_index"]; got != i {
				r.Fatalf("iteration %d: loop_index = %v", i, got)
			}
			if got := flow.GetVariable("it", nil); got != want {
				r.Fatalf("iteration %d: item %q, want %q", i, got, want)
			}
		}

		res, err := n.Execute(context.Background(), flow, cfg)
		if err != nil {
			r.Fatalf("exhaustion call: %v", err)
		}
		if res.Bool("loop") {
			r.Fatalf("loop continued past %d elements", len(items))
		}
		if got := res["loop_total"]; got != len(items) {
			r.Fatalf("loop_total = %v, want %d", got, len(items))
		}
	})
}

func TestForeachNode_DefaultItemName(t *testing.T) {
	n := &ForeachNode{}
	flow := startedFlow(t, "onebot", "x")
	flow.SetVariable("items", []any{"a"})

	_, err := n.Execute(context.Background(), flow, workflow.Config{
		"list_variable": "items",
		"loop_body":     "s_body",
	})
	require.NoError(t, err)
	require.Equal(t, "a", flow.GetVariable("item", nil), "the element variable defaults to item")
}
