package node

import (
	"context"
	"encoding/json"
	"regexp"

	"botweave/internal/workflow"
)

// storageNameRe restricts bucket names to filesystem-safe identifiers.
var storageNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// DataStorageNode reads and writes persistent key/value buckets so
// workflows can keep state across runs.
type DataStorageNode struct {
	store Store
}

func (n *DataStorageNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "data_storage",
		Name:        "Data Storage",
		Description: "Persists key/value data across workflow runs",
		Category:    "data",
		Outputs: []workflow.Port{
			{Name: "result", Label: "result - operation outcome", Type: "any"},
			{Name: "success", Label: "success - operation succeeded", Type: "boolean"},
		},
	}
}

func (n *DataStorageNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	name := cfg.Str("storage_name")
	op := cfg.Str("operation")
	if op == "" {
		op = "get"
	}
	saveTo := cfg.Str("save_to")
	if saveTo == "" {
		saveTo = "result"
	}

	if name == "" || !storageNameRe.MatchString(name) {
		return storageError("invalid storage name, only letters, digits, and underscores are allowed"), nil
	}
	if n.store == nil {
		return storageError("storage is not configured"), nil
	}

	key := flow.RenderTemplate(cfg.Str("key"))
	value := flow.RenderTemplate(cfg.Str("value"))
	defaultValue := cfg.Str("default_value")

	result, err := n.run(name, op, key, value, defaultValue)
	if err != nil {
		return storageError(err.Error()), nil
	}
	if v := result["result"]; v != nil {
		flow.SetVariable(saveTo, v)
	}
	return result, nil
}

func (n *DataStorageNode) run(name, op, key, value, defaultValue string) (workflow.Result, error) {
	switch op {
	case "get":
		if key == "" {
			return storageError("get requires a key"), nil
		}
		v, found, err := n.store.Get(name, key)
		if err != nil {
			return nil, err
		}
		if !found {
			if defaultValue != "" {
				return workflow.Result{"success": true, "result": defaultValue}, nil
			}
			return workflow.Result{"success": true, "result": nil}, nil
		}
		return workflow.Result{"success": true, "result": v}, nil

	case "set":
		if key == "" {
			return storageError("set requires a key"), nil
		}
		parsed := parseStoredValue(value)
		if err := n.store.Set(name, key, parsed); err != nil {
			return nil, err
		}
		return workflow.Result{"success": true, "result": parsed}, nil

	case "delete":
		if key == "" {
			return storageError("delete requires a key"), nil
		}
		deleted, err := n.store.Delete(name, key)
		if err != nil {
			return nil, err
		}
		return workflow.Result{"success": true, "result": deleted}, nil

	case "exists":
		if key == "" {
			return storageError("exists requires a key"), nil
		}
		found, err := n.store.Exists(name, key)
		if err != nil {
			return nil, err
		}
		return workflow.Result{"success": true, "result": found}, nil

	case "list_keys":
		keys, err := n.store.Keys(name)
		if err != nil {
			return nil, err
		}
		return workflow.Result{"success": true, "result": keys}, nil

	case "get_all":
		all, err := n.store.All(name)
		if err != nil {
			return nil, err
		}
		return workflow.Result{"success": true, "result": all}, nil

	case "clear":
		if err := n.store.Clear(name); err != nil {
			return nil, err
		}
		return workflow.Result{"success": true, "result": true}, nil

	default:
		return storageError("unknown operation: " + op), nil
	}
}

// storageError is errResult with the nil result slot the storage
// contract promises.
func storageError(msg string) workflow.Result {
	return workflow.Result{"success": false, "result": nil, "error": msg}
}

// parseStoredValue decodes a rendered value before storing it: valid
// JSON keeps its structure, anything else is stored as the raw string.
func parseStoredValue(value string) any {
	if value == "" {
		return ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return value
	}
	return decoded
}
