package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetValue updates one dotted key (e.g. "server.port") in the config
// file. It preserves comments and formatting in untouched sections by
// editing the yaml.Node tree in place. Missing intermediate sections
// are created; a missing file is created from scratch.
func SetValue(configPath, key, value string) error {
	segments := strings.Split(key, ".")
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("invalid config key %q", key)
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path comes from the resolved data dir or --config
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}

	setNode(root, segments, value)

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// setNode walks the mapping tree along segments, creating intermediate
// mappings as needed, and sets the leaf to a plain scalar. Plain style
// lets the YAML parser re-type numbers and booleans on the next read.
func setNode(mapping *yaml.Node, segments []string, value string) {
	name := segments[0]

	var valueNode *yaml.Node
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		if mapping.Content[i].Value == name {
			valueNode = mapping.Content[i+1]
			break
		}
	}
	if valueNode == nil {
		valueNode = &yaml.Node{Kind: yaml.MappingNode}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			valueNode,
		)
	}

	if len(segments) == 1 {
		*valueNode = yaml.Node{Kind: yaml.ScalarNode, Value: value}
		return
	}

	if valueNode.Kind != yaml.MappingNode {
		// A scalar in the way of a nested key gets replaced by a section.
		*valueNode = yaml.Node{Kind: yaml.MappingNode}
	}
	setNode(valueNode, segments[1:], value)
}

// writeAtomic writes via a temp file and rename so a crash mid-write
// never truncates the config.
func writeAtomic(configPath string, data []byte) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".botweave.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
