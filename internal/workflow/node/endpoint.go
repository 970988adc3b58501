package node

import (
	"context"
	"encoding/json"
	"strings"

	"botweave/internal/workflow"
)

// EndpointNode calls an arbitrary protocol API action with JSON
// parameters. Only OneBot exposes a generic action surface; the QQ
// adapter's fixed REST endpoints are not reachable this way.
type EndpointNode struct {
	call APICaller
}

func (n *EndpointNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "endpoint",
		Name:        "Endpoint",
		Description: "Calls a protocol API action directly",
		Category:    "action",
		Outputs: []workflow.Port{
			{Name: "endpoint_response", Label: "endpoint_response - API response", Type: "any"},
			{Name: "endpoint_success", Label: "endpoint_success - call succeeded", Type: "boolean"},
			{Name: "endpoint_error", Label: "endpoint_error - error message", Type: "string"},
		},
	}
}

func (n *EndpointNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	if protocol := flow.Event.Protocol(); protocol != "onebot" {
		return errResult("endpoint node supports only the onebot protocol, current: " + protocol), nil
	}

	action := strings.TrimSpace(cfg.Str("action"))
	if action == "" {
		return errResult("action must not be empty"), nil
	}
	paramsJSON := cfg.Str("params")
	if paramsJSON == "" {
		paramsJSON = "{}"
	}

	if cfg.BoolOr("enable_template", true) {
		action = flow.RenderTemplate(action)
		paramsJSON = flow.RenderTemplate(paramsJSON)
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return errResult("params must be a JSON object: " + err.Error()), nil
	}

	if n.call == nil {
		return errResult("endpoint caller is not configured"), nil
	}

	response, err := n.call(ctx, flow.Event, action, params)
	if err != nil {
		msg := "endpoint call failed: " + err.Error()
		flow.SetVariable("endpoint_response", nil)
		flow.SetVariable("endpoint_success", false)
		flow.SetVariable("endpoint_error", msg)
		return errResult(msg), nil
	}

	flow.SetVariable("endpoint_response", response)
	flow.SetVariable("endpoint_success", true)
	flow.SetVariable("endpoint_error", "")
	flow.MarkHandled()

	return withNext(workflow.Result{"success": true, "response": response}, cfg), nil
}
