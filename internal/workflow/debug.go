package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"botweave/internal/event"
	"botweave/internal/kv"
)

const (
	// debugKeyPrefix namespaces debug traces in the KV store.
	debugKeyPrefix = "workflow_debug:"

	// debugTTL bounds how long a trace survives. Traces are diagnostic,
	// not audit data.
	debugTTL = time.Hour

	// debugErrorLimit truncates recorded error strings.
	debugErrorLimit = 500
)

// NodeRecord is one step's entry in an execution trace.
type NodeRecord struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Input      any    `json:"input"`
	Output     any    `json:"output"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// DebugRecord is the full trace of one workflow execution.
type DebugRecord struct {
	WorkflowID     int64        `json:"workflow_id"`
	WorkflowName   string       `json:"workflow_name"`
	TriggerTime    string       `json:"trigger_time"`
	TriggerMessage string       `json:"trigger_message"`
	UserID         string       `json:"user_id"`
	GroupID        string       `json:"group_id"`
	Status         string       `json:"status"`
	Error          string       `json:"error,omitempty"`
	Nodes          []NodeRecord `json:"nodes"`
}

// Recorder accumulates one execution trace. It is created per run and
// never shared, so it needs no locking.
type Recorder struct {
	record DebugRecord
}

// NewRecorder starts a trace for the given workflow.
func NewRecorder(workflowID int64, workflowName string) *Recorder {
	return &Recorder{record: DebugRecord{
		WorkflowID:   workflowID,
		WorkflowName: workflowName,
		Status:       "running",
	}}
}

// Start captures the trigger context from the event.
func (r *Recorder) Start(ev event.Event) {
	r.record.TriggerTime = ev.Time().Format("2006-01-02 15:04:05")
	r.record.TriggerMessage = "(non-message event)"
	switch e := ev.(type) {
	case *event.MessageEvent:
		r.record.TriggerMessage = e.Message().PlainText()
		r.record.UserID = e.UserID()
		r.record.GroupID = e.GroupID()
	case *event.NoticeEvent:
		r.record.UserID = e.UserID()
		r.record.GroupID = e.GroupID()
	case *event.RequestEvent:
		r.record.UserID = e.UserID()
		r.record.GroupID = e.GroupID()
	}
}

// RecordSuccess appends a successful step entry.
func (r *Recorder) RecordSuccess(id, typ string, output any, durationMS int64, input map[string]any) {
	r.record.Nodes = append(r.record.Nodes, NodeRecord{
		ID:         id,
		Type:       typ,
		Status:     "success",
		Input:      sanitizeTraceData(input),
		Output:     sanitizeTraceData(output),
		DurationMS: durationMS,
	})
}

// RecordError appends a failed step entry.
func (r *Recorder) RecordError(id, typ, errMsg string, input map[string]any) {
	r.record.Nodes = append(r.record.Nodes, NodeRecord{
		ID:     id,
		Type:   typ,
		Status: "error",
		Input:  sanitizeTraceData(input),
		Error:  truncate(errMsg, debugErrorLimit),
	})
}

// Finish closes the trace with a terminal status and returns it.
func (r *Recorder) Finish(success bool, errMsg string) *DebugRecord {
	if success {
		r.record.Status = "success"
	} else {
		r.record.Status = "error"
	}
	r.record.Error = truncate(errMsg, debugErrorLimit)
	return &r.record
}

// sanitizeTraceData makes a value JSON-safe for the stored trace. Values
// that fail to encode are replaced by a short marker rather than
// dropping the whole record.
func sanitizeTraceData(data any) any {
	if data == nil {
		return nil
	}
	if _, err := json.Marshal(data); err != nil {
		return fmt.Sprintf("(unserializable: %s)", truncate(err.Error(), 100))
	}
	return data
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

// DebugStore saves and loads execution traces in the KV store, one slot
// per workflow. A new run overwrites the previous trace.
type DebugStore struct {
	store kv.Store
}

// NewDebugStore wraps a KV backend.
func NewDebugStore(store kv.Store) *DebugStore {
	return &DebugStore{store: store}
}

// Save persists a finished trace under the workflow's debug key.
func (s *DebugStore) Save(ctx context.Context, rec *DebugRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode debug record: %w", err)
	}
	key := fmt.Sprintf("%s%d", debugKeyPrefix, rec.WorkflowID)
	if err := s.store.Set(ctx, key, string(data), debugTTL); err != nil {
		return fmt.Errorf("failed to save debug record: %w", err)
	}
	return nil
}

// Load returns the last trace for a workflow, reporting whether one
// exists.
func (s *DebugStore) Load(ctx context.Context, workflowID int64) (*DebugRecord, bool, error) {
	key := fmt.Sprintf("%s%d", debugKeyPrefix, workflowID)
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load debug record: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec DebugRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode debug record: %w", err)
	}
	return &rec, true, nil
}

// Clear drops the stored trace for a workflow.
func (s *DebugStore) Clear(ctx context.Context, workflowID int64) error {
	key := fmt.Sprintf("%s%d", debugKeyPrefix, workflowID)
	return s.store.Delete(ctx, key)
}
