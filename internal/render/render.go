// Package render executes HTML templates from the Render directory and
// returns the output as base64. Turning that HTML into an actual image
// is an external rasterizer's job; the engine only deals in the encoded
// payload.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HTMLRenderer renders templates resolved relative to a base directory.
type HTMLRenderer struct {
	baseDir string
}

// NewHTMLRenderer creates a renderer rooted at baseDir.
func NewHTMLRenderer(baseDir string) *HTMLRenderer {
	return &HTMLRenderer{baseDir: baseDir}
}

// Render parses the template at templatePath and executes it with data.
// width and height are advisory viewport hints; when set they become
// available to the template as width/height unless the data already
// carries those keys. Zero means auto-sizing.
func (r *HTMLRenderer) Render(ctx context.Context, templatePath string, data map[string]any, width, height int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := r.resolve(templatePath)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path) //nolint:gosec // resolve rejects paths outside baseDir
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("template %s not found", templatePath)
		}
		return "", fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templatePath, err)
	}

	if width > 0 || height > 0 {
		merged := make(map[string]any, len(data)+2)
		for k, v := range data {
			merged[k] = v
		}
		if _, ok := merged["width"]; !ok && width > 0 {
			merged["width"] = width
		}
		if _, ok := merged["height"]; !ok && height > 0 {
			merged["height"] = height
		}
		data = merged
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templatePath, err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// resolve maps a template path onto the render directory, rejecting
// anything that would escape it.
func (r *HTMLRenderer) resolve(templatePath string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(templatePath))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("template path %q escapes the render directory", templatePath)
	}
	return filepath.Join(r.baseDir, cleaned), nil
}

// Templates lists every .html file under the render directory as a
// sorted slice of slash-separated relative paths.
func (r *HTMLRenderer) Templates() ([]string, error) {
	var names []string
	err := filepath.WalkDir(r.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		rel, err := filepath.Rel(r.baseDir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list render templates: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
