package node

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"botweave/internal/workflow"
)

// HTMLRenderNode feeds an HTML template and the flow variables to the
// renderer and publishes the produced image as base64.
type HTMLRenderNode struct {
	renderer Renderer
}

func (n *HTMLRenderNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "html_render",
		Name:        "HTML Render",
		Description: "Renders an HTML template to a base64 image",
		Category:    "action",
		Outputs: []workflow.Port{
			{Name: "image_base64", Label: "image_base64 - rendered image data", Type: "string"},
			{Name: "render_success", Label: "render_success - rendering succeeded", Type: "boolean"},
		},
	}
}

func (n *HTMLRenderNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	templatePath := flow.RenderTemplate(strings.TrimSpace(cfg.Str("template_path")))
	if templatePath == "" {
		return n.failure(flow, "template path is empty"), nil
	}
	if n.renderer == nil {
		return n.failure(flow, "renderer is not configured"), nil
	}

	dataStr := cfg.Str("template_data")
	if dataStr == "" {
		dataStr = "{}"
	}
	rendered := flow.RenderTemplate(dataStr)
	var data map[string]any
	if err := json.Unmarshal([]byte(rendered), &data); err != nil {
		return n.failure(flow, "template data is not valid JSON: "+err.Error()), nil
	}

	injectVariables(data, flow.Variables)

	width := parseDimension(cfg.Str("width"))
	height := parseDimension(cfg.Str("height"))

	image, err := n.renderer.Render(ctx, templatePath, data, width, height)
	if err != nil {
		return n.failure(flow, "rendering failed: "+err.Error()), nil
	}
	if image == "" {
		return n.failure(flow, "rendering produced no output, check the template path"), nil
	}

	flow.SetVariable("image_base64", image)
	flow.SetVariable("render_success", true)
	return workflow.Result{"success": true, "render_success": true, "image_base64": image}, nil
}

func (n *HTMLRenderNode) failure(flow *workflow.Context, msg string) workflow.Result {
	flow.SetVariable("render_success", false)
	flow.SetVariable("image_base64", "")
	return workflow.Result{"success": false, "render_success": false, "error": msg}
}

// injectVariables adds the flow variables to the template data without
// overwriting explicit entries. Dots in names become underscores so the
// values stay addressable in templates. Engine-internal variables and
// values that do not survive JSON encoding are skipped.
func injectVariables(data map[string]any, vars map[string]any) {
	for name, value := range vars {
		if strings.HasPrefix(name, "_") {
			continue
		}
		safeName := strings.ReplaceAll(name, ".", "_")
		if _, exists := data[safeName]; exists {
			continue
		}
		if _, err := json.Marshal(value); err != nil {
			continue
		}
		data[safeName] = value
	}
}

// parseDimension reads a pixel size; anything but a plain positive
// number means auto.
func parseDimension(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
