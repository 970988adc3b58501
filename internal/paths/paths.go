// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DBFileName is the sqlite database file inside the data directory.
const DBFileName = "botweave.db"

// ResolveDataDir resolves the botweave data directory.
//
// Resolution order:
//   - explicit non-empty path (config or --data-dir flag)
//   - $BOTWEAVE_DATA
//   - the current directory, when it already contains botweave.db
//   - ~/.botweave
//
// Redirect handling:
//   - If <dir>/redirect exists, its contents name the actual data directory
//     (relative entries resolve against <dir>). This supports shared
//     deployments where several checkouts point at one data root.
func ResolveDataDir(path string) string {
	if path != "" {
		return followRedirect(filepath.Clean(path))
	}

	if env := os.Getenv("BOTWEAVE_DATA"); env != "" {
		return followRedirect(filepath.Clean(env))
	}

	// A database in the working directory marks it as a data dir already.
	if _, err := os.Stat(DBFileName); err == nil {
		if cwd, err := os.Getwd(); err == nil {
			return followRedirect(cwd)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return followRedirect(filepath.Clean(".botweave"))
	}
	return followRedirect(filepath.Join(home, ".botweave"))
}

// followRedirect checks for a redirect file and follows it if present.
func followRedirect(dir string) string {
	redirectPath := filepath.Join(dir, "redirect")

	content, err := os.ReadFile(redirectPath) //nolint:gosec // redirect path is within the data dir
	if err != nil {
		return dir
	}

	target := strings.TrimSpace(string(content))
	if target == "" {
		return dir
	}

	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(dir, target))
}

// DBPath returns the sqlite database path inside the data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFileName)
}

// LogDir returns the log directory inside the data directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// DataFilesDir returns the directory holding data_storage JSON files.
func DataFilesDir(dataDir string) string {
	return filepath.Join(dataDir, "Data")
}

// SnippetsDir returns the directory holding user snippet scripts.
func SnippetsDir(dataDir string) string {
	return filepath.Join(dataDir, "Snippets")
}

// RenderDir returns the directory holding HTML render templates.
func RenderDir(dataDir string) string {
	return filepath.Join(dataDir, "Render")
}

// TracesPath returns the default trace export file inside the data directory.
func TracesPath(dataDir string) string {
	return filepath.Join(dataDir, "traces", "traces.jsonl")
}

// ConfigPath returns the config file path inside the data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "botweave.yaml")
}

// EnsureLayout creates the data directory and its standard subdirectories.
func EnsureLayout(dataDir string) error {
	for _, dir := range []string{
		dataDir,
		LogDir(dataDir),
		DataFilesDir(dataDir),
		SnippetsDir(dataDir),
		RenderDir(dataDir),
	} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return nil
}
