package presentation

import (
	"encoding/json"
	"io"
)

// Formatter prints DTOs as indented JSON for CLI consumption.
type Formatter struct {
	enc *json.Encoder
}

// NewFormatter writes formatted output to w.
func NewFormatter(w io.Writer) *Formatter {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &Formatter{enc: enc}
}

// FormatTemplates prints the starter template list.
func (f *Formatter) FormatTemplates(templates []TemplateDTO) error {
	return f.enc.Encode(templates)
}

// FormatWorkflow prints one imported workflow row.
func (f *Formatter) FormatWorkflow(workflow WorkflowDTO) error {
	return f.enc.Encode(workflow)
}
