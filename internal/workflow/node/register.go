// Package node implements the built-in workflow step kinds. Each kind is
// a stateless workflow.Node; per-step settings arrive in the Config and
// per-run state lives in the flow context. External capabilities (file
// storage, HTML rendering, snippet execution, protocol API calls) are
// injected through Deps so the kinds stay testable.
package node

import (
	"context"
	"net/http"

	"botweave/internal/event"
	"botweave/internal/workflow"
)

// Store is the named-bucket persistence the data_storage kind operates
// on. Buckets are independent key/value documents addressed by name.
type Store interface {
	Get(name, key string) (any, bool, error)
	Set(name, key string, value any) error
	Delete(name, key string) (any, error)
	Exists(name, key string) (bool, error)
	Keys(name string) ([]string, error)
	All(name string) (map[string]any, error)
	Clear(name string) error
}

// Renderer turns an HTML template plus data into base64 image content.
// width and height of 0 mean auto-sizing.
type Renderer interface {
	Render(ctx context.Context, templatePath string, data map[string]any, width, height int) (string, error)
}

// SnippetRunner executes a named snippet against the flow variables and
// returns its result value.
type SnippetRunner interface {
	Run(ctx context.Context, name string, vars map[string]any) (any, error)
}

// APICaller invokes a protocol endpoint action on the adapter the event
// arrived through.
type APICaller func(ctx context.Context, ev event.Event, action string, params map[string]any) (any, error)

// Deps collects the external collaborators node kinds need. A nil field
// disables the kinds that depend on it: they return an error result
// instead of executing.
type Deps struct {
	Store      Store
	Renderer   Renderer
	Snippets   SnippetRunner
	CallAPI    APICaller
	HTTPClient *http.Client
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

// RegisterBuiltins registers every built-in node kind with the registry.
func RegisterBuiltins(reg *workflow.Registry, deps Deps) {
	reg.Register(&StartNode{})
	reg.Register(&EndNode{})
	reg.Register(&SendMessageNode{})
	reg.Register(&ConditionNode{})
	reg.Register(&KeywordTriggerNode{})
	reg.Register(&ProtocolCheckNode{})
	reg.Register(&ScheduleCheckNode{})
	reg.Register(&ForeachNode{})
	reg.Register(&SetVariableNode{})
	reg.Register(&StringOperationNode{})
	reg.Register(&JSONExtractNode{})
	reg.Register(&HTTPRequestNode{client: deps.httpClient()})
	reg.Register(&DataStorageNode{store: deps.Store})
	reg.Register(&HTMLRenderNode{renderer: deps.Renderer})
	reg.Register(&PythonSnippetNode{runner: deps.Snippets})
	reg.Register(&EndpointNode{call: deps.CallAPI})
	reg.Register(&DelayNode{})
	reg.Register(&TimestampNode{})
	reg.Register(&CommentNode{})
}

// errResult is the error-shaped result node kinds return for input and
// configuration problems. Unlike a returned error it does not trigger
// the step's failure policy; downstream steps see success == false.
func errResult(msg string) workflow.Result {
	return workflow.Result{"success": false, "error": msg}
}

// withNext copies the optional next_node jump target from the step
// config into a result.
func withNext(res workflow.Result, cfg workflow.Config) workflow.Result {
	if target := cfg.Str("next_node"); target != "" {
		res["next_node"] = target
	}
	return res
}
