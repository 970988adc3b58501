package node

import (
	"context"

	"botweave/internal/workflow"
)

// PythonSnippetNode runs a named script from the snippet directory and
// stores its result value.
type PythonSnippetNode struct {
	runner SnippetRunner
}

func (n *PythonSnippetNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "python_snippet",
		Name:        "Python Snippet",
		Description: "Runs a predefined script with the flow variables",
		Category:    "advanced",
		Outputs: []workflow.Port{
			{Name: "result", Label: "result - snippet return value", Type: "any"},
		},
	}
}

func (n *PythonSnippetNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	name := cfg.Str("snippet_name")
	if name == "" {
		return errResult("snippet name is empty"), nil
	}
	if n.runner == nil {
		return errResult("snippet runner is not configured"), nil
	}

	result, err := n.runner.Run(ctx, name, flow.Snapshot())
	if err != nil {
		return errResult(err.Error()), nil
	}

	flow.SetVariable("result", result)
	return workflow.Result{"success": true, "result": result}, nil
}
