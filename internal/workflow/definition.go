package workflow

import (
	"encoding/json"
	"fmt"

	"botweave/internal/domain"
)

// Trigger kinds a workflow can declare.
const (
	TriggerMessage  = "message"
	TriggerNotice   = "notice"
	TriggerRequest  = "request"
	TriggerSchedule = "schedule"
)

// Schedule describes when a schedule-triggered workflow fires.
type Schedule struct {
	// Type is "cron" or "interval".
	Type string `json:"type"`

	// Cron is a five-field cron expression, used when Type is "cron".
	Cron string `json:"cron"`

	// IntervalMinutes is the firing period, used when Type is "interval".
	IntervalMinutes int `json:"interval_minutes"`
}

// OnFail is a step's error policy. The only supported action sends a
// fixed message as the run's response.
type OnFail struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Step is one node instance in a workflow program.
type Step struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Config Config  `json:"config"`
	OnFail *OnFail `json:"on_fail,omitempty"`
}

// Definition is the decoded workflow configuration blob.
type Definition struct {
	Name          string
	TriggerType   string
	Protocols     []string
	AllowContinue bool
	EventFilter   []string
	Debug         bool
	Schedule      *Schedule
	Steps         []Step
}

// definitionWire mirrors the persisted JSON layout. allow_continue
// defaults to true when absent, so it decodes through a pointer.
type definitionWire struct {
	Name          string    `json:"name"`
	TriggerType   string    `json:"trigger_type"`
	Protocols     []string  `json:"protocols"`
	AllowContinue *bool     `json:"allow_continue"`
	EventFilter   []string  `json:"event_filter"`
	Debug         bool      `json:"debug"`
	Schedule      *Schedule `json:"schedule"`
	Steps         []Step    `json:"workflow"`
}

// Parse decodes a workflow configuration blob. Steps without an id get
// a synthetic one derived from their type, matching how jumps address
// steps that were created before ids were mandatory.
func Parse(raw string) (*Definition, error) {
	if raw == "" {
		raw = "{}"
	}
	var wire definitionWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse workflow config: %w", err)
	}
	def := &Definition{
		Name:          wire.Name,
		TriggerType:   wire.TriggerType,
		Protocols:     wire.Protocols,
		AllowContinue: true,
		EventFilter:   wire.EventFilter,
		Debug:         wire.Debug,
		Schedule:      wire.Schedule,
		Steps:         wire.Steps,
	}
	if wire.AllowContinue != nil {
		def.AllowContinue = *wire.AllowContinue
	}
	if def.TriggerType == "" {
		def.TriggerType = TriggerMessage
	}
	for i := range def.Steps {
		if def.Steps[i].ID == "" {
			def.Steps[i].ID = "step_" + def.Steps[i].Type
		}
	}
	return def, nil
}

// ParseWorkflow decodes the configuration of a stored workflow record.
func ParseWorkflow(wf *domain.Workflow) (*Definition, error) {
	def, err := Parse(wf.Config)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = wf.Name
	}
	return def, nil
}

// Validate rejects definitions the engine cannot run: unknown trigger
// types, steps without a type, and schedule triggers without a usable
// schedule block.
func (d *Definition) Validate() error {
	switch d.TriggerType {
	case TriggerMessage, TriggerNotice, TriggerRequest, TriggerSchedule:
	default:
		return fmt.Errorf("unknown trigger type %q", d.TriggerType)
	}
	for i, step := range d.Steps {
		if step.Type == "" {
			return fmt.Errorf("step %d has no type", i)
		}
	}
	if d.TriggerType == TriggerSchedule {
		if d.Schedule == nil {
			return fmt.Errorf("schedule trigger requires a schedule block")
		}
		switch d.Schedule.Type {
		case "cron":
			if d.Schedule.Cron == "" {
				return fmt.Errorf("cron schedule requires an expression")
			}
		case "interval":
			if d.Schedule.IntervalMinutes <= 0 {
				return fmt.Errorf("interval schedule requires a positive period")
			}
		default:
			return fmt.Errorf("unknown schedule type %q", d.Schedule.Type)
		}
	}
	return nil
}

// AllowsProtocol reports whether the definition's protocol allowlist
// admits the given protocol. An empty allowlist admits everything.
func (d *Definition) AllowsProtocol(protocol string) bool {
	if len(d.Protocols) == 0 {
		return true
	}
	for _, p := range d.Protocols {
		if p == protocol {
			return true
		}
	}
	return false
}
