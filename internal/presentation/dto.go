// Package presentation converts internal records into the JSON shapes
// the CLI prints.
package presentation

import (
	"time"

	"botweave/internal/domain"
	"botweave/internal/templates"
	"botweave/internal/workflow"
)

// TemplateDTO summarizes one embedded workflow starter.
type TemplateDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Trigger     string `json:"trigger"`
	Steps       int    `json:"steps"`
}

// FromTemplate converts an embedded starter, deriving trigger and step
// count from its parsed definition.
func FromTemplate(tpl templates.Template) (TemplateDTO, error) {
	def, err := workflow.Parse(tpl.Config)
	if err != nil {
		return TemplateDTO{}, err
	}
	return TemplateDTO{
		Name:        tpl.Name,
		Description: tpl.Description,
		Priority:    tpl.Priority,
		Trigger:     def.TriggerType,
		Steps:       len(def.Steps),
	}, nil
}

// FromTemplates converts a slice of starters.
func FromTemplates(tpls []templates.Template) ([]TemplateDTO, error) {
	dtos := make([]TemplateDTO, 0, len(tpls))
	for _, tpl := range tpls {
		dto, err := FromTemplate(tpl)
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

// WorkflowDTO is the stored-row shape printed after a workflow import.
type WorkflowDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// FromWorkflow converts a stored workflow row.
func FromWorkflow(wf *domain.Workflow) WorkflowDTO {
	return WorkflowDTO{
		ID:        wf.ID,
		Name:      wf.Name,
		Enabled:   wf.Enabled,
		Priority:  wf.Priority,
		CreatedAt: wf.CreatedAt,
	}
}
