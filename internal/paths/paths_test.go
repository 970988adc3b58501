package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDataDir_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, dir, ResolveDataDir(dir))
}

func TestResolveDataDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BOTWEAVE_DATA", dir)
	require.Equal(t, dir, ResolveDataDir(""))
}

func TestResolveDataDir_ExplicitBeatsEnv(t *testing.T) {
	explicit := t.TempDir()
	other := t.TempDir()
	t.Setenv("BOTWEAVE_DATA", other)
	require.Equal(t, explicit, ResolveDataDir(explicit))
}

func TestResolveDataDir_RelativeRedirect(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "checkout")
	target := filepath.Join(root, "shared")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.MkdirAll(target, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redirect"), []byte("../shared\n"), 0o600))

	require.Equal(t, target, ResolveDataDir(dir))
}

func TestResolveDataDir_AbsoluteRedirect(t *testing.T) {
	dir := t.TempDir()
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redirect"), []byte(target), 0o600))

	require.Equal(t, target, ResolveDataDir(dir))
}

func TestResolveDataDir_EmptyRedirectIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redirect"), []byte("  \n"), 0o600))

	require.Equal(t, dir, ResolveDataDir(dir))
}

func TestLayoutHelpers(t *testing.T) {
	require.Equal(t, filepath.Join("/data", "botweave.db"), DBPath("/data"))
	require.Equal(t, filepath.Join("/data", "logs"), LogDir("/data"))
	require.Equal(t, filepath.Join("/data", "Data"), DataFilesDir("/data"))
	require.Equal(t, filepath.Join("/data", "Snippets"), SnippetsDir("/data"))
	require.Equal(t, filepath.Join("/data", "Render"), RenderDir("/data"))
	require.Equal(t, filepath.Join("/data", "botweave.yaml"), ConfigPath("/data"))
}

func TestEnsureLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	require.NoError(t, EnsureLayout(dir))

	for _, sub := range []string{"logs", "Data", "Snippets", "Render"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err, "missing %s", sub)
		require.True(t, info.IsDir())
	}
}
