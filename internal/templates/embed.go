// Package templates embeds the starter workflows shipped with the
// binary. Each YAML file under workflows/ describes one importable
// starter: display metadata plus the config document that becomes the
// stored workflow row.
package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed workflows
var starterFS embed.FS

// Template is one importable workflow starter.
type Template struct {
	// Name is the import key, from the file's name field.
	Name string

	// Description is a one-line summary for listings.
	Description string

	// Priority seeds the imported row's dispatch priority.
	Priority int

	// Config is the workflow configuration, already converted to the
	// JSON form the workflow table stores.
	Config string
}

// starterWire mirrors the YAML layout of one starter file.
type starterWire struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Priority    int            `yaml:"priority"`
	Config      map[string]any `yaml:"config"`
}

// List returns every embedded starter, ordered by name.
func List() ([]Template, error) {
	entries, err := fs.ReadDir(starterFS, "workflows")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}
	out := make([]Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		tpl, err := load("workflows/" + entry.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the starter with the given name.
func Get(name string) (Template, error) {
	all, err := List()
	if err != nil {
		return Template{}, err
	}
	for _, tpl := range all {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return Template{}, fmt.Errorf("unknown template %q", name)
}

func load(path string) (Template, error) {
	data, err := fs.ReadFile(starterFS, path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	var wire starterWire
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return Template{}, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	if wire.Name == "" {
		return Template{}, fmt.Errorf("template %s has no name", path)
	}
	if len(wire.Config) == 0 {
		return Template{}, fmt.Errorf("template %s has no config", path)
	}
	cfg, err := json.Marshal(wire.Config)
	if err != nil {
		return Template{}, fmt.Errorf("failed to encode template %s config: %w", path, err)
	}
	return Template{
		Name:        wire.Name,
		Description: wire.Description,
		Priority:    wire.Priority,
		Config:      string(cfg),
	}, nil
}
