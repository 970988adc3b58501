// Package snippet runs external scripts from the Snippets directory.
// The runner hands the flow variables to the script as JSON on stdin
// and reads a JSON result from stdout, which keeps snippets language
// agnostic as long as an interpreter can run them.
package snippet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"botweave/internal/log"
)

const (
	// DefaultInterpreter runs snippets when none is configured.
	DefaultInterpreter = "python3"
	// DefaultTimeout bounds one snippet execution.
	DefaultTimeout = 10 * time.Second
)

// ExecRunner executes snippet scripts as subprocesses.
type ExecRunner struct {
	baseDir     string
	interpreter string
	timeout     time.Duration
}

// NewExecRunner creates a runner over baseDir. interpreter is the
// command invoked with the script path appended, split on whitespace
// so values like "python3 -u" work. Empty falls back to the defaults.
func NewExecRunner(baseDir, interpreter string, timeout time.Duration) *ExecRunner {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{baseDir: baseDir, interpreter: interpreter, timeout: timeout}
}

// Run executes the named script with vars as its JSON stdin. The
// stdout is decoded as JSON; output that is not valid JSON comes back
// as a plain string so scripts may simply print their answer.
func (r *ExecRunner) Run(ctx context.Context, name string, vars map[string]any) (any, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snippet %s not found", name)
		}
		return nil, fmt.Errorf("failed to stat snippet %s: %w", name, err)
	}

	input, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snippet input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields := strings.Fields(r.interpreter)
	args := append(fields[1:], path) //nolint:gocritic // fields[1:] is never reused
	cmd := exec.CommandContext(runCtx, fields[0], args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = bytes.NewReader(input)
	// Unblocks Run when a killed script leaves children holding the
	// output pipes.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("snippet %s timed out after %s", name, r.timeout)
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("snippet %s failed: %w", name, runErr)
		}
		return nil, fmt.Errorf("snippet %s failed: %v: %s", name, runErr, msg)
	}

	log.Debug(log.CatSnippet, "snippet executed", "name", name, "duration_ms", elapsed.Milliseconds())

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return out, nil
	}
	return result, nil
}

// resolve maps a snippet name onto the snippets directory, rejecting
// anything that would escape it.
func (r *ExecRunner) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snippet name is empty")
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("snippet name %q escapes the snippets directory", name)
	}
	return filepath.Join(r.baseDir, cleaned), nil
}

// Scripts lists every regular file under the snippets directory as a
// sorted slice of slash-separated relative paths. Hidden files are
// skipped.
func (r *ExecRunner) Scripts() ([]string, error) {
	var names []string
	err := filepath.WalkDir(r.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() && path != r.baseDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
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
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
