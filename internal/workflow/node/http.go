package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"botweave/internal/workflow"
)

// maxResponseBody caps how much of an HTTP response the node reads.
const maxResponseBody = 10 << 20

// HTTPRequestNode calls an external HTTP API and publishes the response
// under the response_* variables. Transport failures are reported
// through response_error rather than failing the step, so workflows can
// branch on the outcome.
type HTTPRequestNode struct {
	client *http.Client
}

func (n *HTTPRequestNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "http_request",
		Name:        "HTTP Request",
		Description: "Sends an HTTP request to an external API",
		Category:    "network",
		Outputs: []workflow.Port{
			{Name: "response_status", Label: "response_status - HTTP status code", Type: "integer"},
			{Name: "response_text", Label: "response_text - response body", Type: "string"},
			{Name: "response_json", Label: "response_json - decoded JSON body", Type: "object"},
			{Name: "response_success", Label: "response_success - status below 400", Type: "boolean"},
			{Name: "response_error", Label: "response_error - transport error", Type: "string"},
		},
	}
}

func (n *HTTPRequestNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	method := strings.ToUpper(cfg.Str("method"))
	if method == "" {
		method = http.MethodGet
	}
	url := flow.RenderTemplate(cfg.Str("url"))
	timeout := cfg.Float("timeout", 10)

	headers := map[string]string{}
	if raw := cfg.Str("headers"); raw != "" {
		rendered := flow.RenderTemplate(raw)
		if err := json.Unmarshal([]byte(rendered), &headers); err != nil {
			flow.SetVariable("response_error", "invalid headers JSON")
			flow.SetVariable("response_success", false)
			return errResult("invalid headers JSON"), nil
		}
	}

	var bodyReader io.Reader
	bodyIsJSON := false
	if raw := cfg.Str("body"); raw != "" && (method == http.MethodPost || method == http.MethodPut) {
		rendered := flow.RenderTemplate(raw)
		bodyIsJSON = json.Valid([]byte(rendered))
		bodyReader = strings.NewReader(rendered)
	}

	ctx, cancel := context.WithTimeout(ctx, secondsDuration(timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return n.transportFailure(flow, err.Error()), nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if bodyIsJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("request timeout after %g seconds", timeout)
		}
		return n.transportFailure(flow, msg), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return n.transportFailure(flow, "failed to read response: "+err.Error()), nil
	}

	flow.SetVariable("response_status", resp.StatusCode)
	flow.SetVariable("response_text", string(body))
	flow.SetVariable("response_success", resp.StatusCode < 400)

	if cfg.Str("response_type") != "text" {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			flow.SetVariable("response_json", decoded)
		}
	}
	flow.SetVariable("response_error", "")

	return workflow.Result{"success": true, "status_code": resp.StatusCode}, nil
}

// transportFailure records a failed exchange in the response variables
// and returns the matching error-shaped result.
func (n *HTTPRequestNode) transportFailure(flow *workflow.Context, msg string) workflow.Result {
	flow.SetVariable("response_error", msg)
	flow.SetVariable("response_success", false)
	return errResult(msg)
}

// JSONExtractNode pulls one value out of a nested JSON structure using
// a dotted path with optional [index] segments.
type JSONExtractNode struct{}

func (n *JSONExtractNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "json_extract",
		Name:        "JSON Extract",
		Description: "Extracts a field from a JSON structure",
		Category:    "data",
		Inputs: []workflow.Port{
			{Name: "json_source", Label: "json_source - variable holding JSON", Type: "object", Required: true},
		},
	}
}

func (n *JSONExtractNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	sourceName := cfg.Str("json_source")
	path := cfg.Str("extract_path")
	saveTo := cfg.Str("save_to")
	defaultValue := cfg["default_value"]

	data, _ := flow.Lookup(sourceName)
	if isEmptyValue(data) {
		flow.SetVariable(saveTo, defaultValue)
		return errResult("JSON source is empty"), nil
	}

	if s, ok := data.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			flow.SetVariable(saveTo, defaultValue)
			return errResult("invalid JSON string"), nil
		}
		data = decoded
	}

	value, err := extractPath(data, path)
	if err != nil {
		flow.SetVariable(saveTo, defaultValue)
		return errResult(err.Error()), nil
	}
	flow.SetVariable(saveTo, value)
	return workflow.Result{"success": true, "value": value}, nil
}

// extractPath walks a dotted path through nested maps and slices.
// Numeric segments index slices; a missing map key ends the walk with a
// nil value rather than an error, mirroring optional fields.
func extractPath(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}
	normalized := strings.ReplaceAll(path, "[", ".")
	normalized = strings.ReplaceAll(normalized, "]", "")

	current := data
	for _, part := range strings.Split(normalized, ".") {
		if part == "" {
			continue
		}
		if idx, isIndex := parseIndex(part); isIndex {
			arr, ok := current.([]any)
			if !ok || idx >= len(arr) {
				return nil, fmt.Errorf("cannot access %q in path %q", part, path)
			}
			current = arr[idx]
		} else if m, ok := current.(map[string]any); ok {
			current = m[part]
		} else {
			return nil, fmt.Errorf("cannot access %q in path %q", part, path)
		}
		if current == nil {
			break
		}
	}
	return current, nil
}

func parseIndex(part string) (int, bool) {
	if part == "" {
		return 0, false
	}
	n := 0
	for _, r := range part {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// isEmptyValue mirrors the source check: nil, empty strings, and empty
// containers all count as no data.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
