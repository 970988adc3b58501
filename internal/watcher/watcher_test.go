package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/watcher"
)

func waitChange(t *testing.T, ch <-chan watcher.Change) watcher.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification but got timeout")
		return watcher.Change{}
	}
}

func TestWatcher_ReportsCatalog(t *testing.T) {
	dataDir := t.TempDir()
	renderDir := t.TempDir()

	w, err := watcher.New(map[string]string{
		"data":   dataDir,
		"render": renderDir,
	}, 50*time.Millisecond)
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	err = os.WriteFile(filepath.Join(dataDir, "counters.json"), []byte("{}"), 0o600)
	require.NoError(t, err, "failed to write file")

	change := waitChange(t, changes)
	require.Equal(t, "data", change.Catalog, "change should name the touched catalog")
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counters.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600), "failed to create test file")

	w, err := watcher.New(map[string]string{"data": dir}, 50*time.Millisecond)
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Rapid writes should coalesce into a single notification.
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("{\"i\": %d}", i)), 0o600), "failed to write file")
		time.Sleep(5 * time.Millisecond)
	}

	waitChange(t, changes)

	select {
	case c := <-changes:
		t.Fatalf("unexpected second notification: %+v", c)
	case <-time.After(150 * time.Millisecond):
		// Expected, the burst collapsed into one change.
	}
}

func TestWatcher_WatchesSubdirectories(t *testing.T) {
	renderDir := t.TempDir()
	subDir := filepath.Join(renderDir, "cards")
	require.NoError(t, os.MkdirAll(subDir, 0o750), "failed to create subdirectory")

	w, err := watcher.New(map[string]string{"render": renderDir}, 50*time.Millisecond)
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	err = os.WriteFile(filepath.Join(subDir, "profile.html"), []byte("<html></html>"), 0o600)
	require.NoError(t, err, "failed to write nested file")

	change := waitChange(t, changes)
	require.Equal(t, "render", change.Catalog, "nested writes should be attributed to the catalog root")
}

func TestWatcher_ReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600), "failed to create test file")

	w, err := watcher.New(map[string]string{"data": dir}, 50*time.Millisecond)
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	require.NoError(t, os.Remove(path), "failed to remove file")

	change := waitChange(t, changes)
	require.Equal(t, "data", change.Catalog, "removals should notify")
}

func TestWatcher_SkipsMissingDirs(t *testing.T) {
	existing := t.TempDir()
	missing := filepath.Join(t.TempDir(), "not_created")

	w, err := watcher.New(map[string]string{
		"data":     existing,
		"snippets": missing,
	}, 50*time.Millisecond)
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	require.NoError(t, err, "missing dirs should not fail startup")

	err = os.WriteFile(filepath.Join(existing, "live.json"), []byte("{}"), 0o600)
	require.NoError(t, err, "failed to write file")

	change := waitChange(t, changes)
	require.Equal(t, "data", change.Catalog, "existing dirs keep working")
}

func TestWatcher_StopClosesChannel(t *testing.T) {
	w, err := watcher.New(map[string]string{"data": t.TempDir()}, 50*time.Millisecond)
	require.NoError(t, err, "failed to create watcher")

	changes, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	require.NoError(t, w.Stop(), "stop should succeed")

	select {
	case _, ok := <-changes:
		require.False(t, ok, "channel should be closed after stop")
	case <-time.After(2 * time.Second):
		t.Fatal("channel should close after stop")
	}
}
