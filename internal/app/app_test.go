package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/config"
	"botweave/internal/domain"
	"botweave/internal/infrastructure/sqlite"
	"botweave/internal/paths"
	"botweave/internal/testutil"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Scheduler.Timezone = "UTC"
	return cfg
}

// startApp runs the full lifecycle and waits until /health answers.
func startApp(t *testing.T, cfg config.Config) (*App, chan error) {
	t.Helper()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Start(context.Background()) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", a.Port())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	return a, errCh
}

func stopApp(t *testing.T, a *App, errCh chan error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestApp_StartStop(t *testing.T) {
	a, errCh := startApp(t, testConfig(t))
	stopApp(t, a, errCh)
}

func TestApp_CreatesDataLayout(t *testing.T) {
	cfg := testConfig(t)
	a, errCh := startApp(t, cfg)
	defer stopApp(t, a, errCh)

	for _, dir := range []string{
		paths.LogDir(a.dataDir),
		paths.DataFilesDir(a.dataDir),
		paths.SnippetsDir(a.dataDir),
		paths.RenderDir(a.dataDir),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestApp_AutoStartClearsStaleRunningFlag(t *testing.T) {
	cfg := testConfig(t)

	// Seed a bot that claims to be running but whose config cannot
	// start an adapter.
	seed, err := sqlite.NewDB(paths.DBPath(paths.ResolveDataDir(cfg.DataDir)))
	require.NoError(t, err)
	testutil.NewBuilder(t, seed).
		WithUser(1, "alice").
		WithBot(1, "broken", testutil.BotConfig(map[string]any{}), testutil.BotRunning()).
		Build()
	require.NoError(t, seed.Close())

	a, errCh := startApp(t, cfg)
	defer stopApp(t, a, errCh)

	bot, err := a.db.Bots().FindByID(1)
	require.NoError(t, err)
	require.False(t, bot.IsRunning)

	_, running := a.adapters.Get(1)
	require.False(t, running)
}

func TestApp_WatcherReloadsWorkflows(t *testing.T) {
	cfg := testConfig(t)
	a, errCh := startApp(t, cfg)
	defer stopApp(t, a, errCh)

	wf := &domain.Workflow{
		Name:     "late arrival",
		Enabled:  true,
		Priority: 100,
		Config:   `{"workflow": [{"id": "send", "type": "send_message", "config": {"content": "hi"}}]}`,
	}
	require.NoError(t, a.db.Workflows().Save(wf))
	_, cached := a.cache.ByID(wf.ID)
	require.False(t, cached)

	// Touching a catalog file triggers the debounced reload.
	probe := filepath.Join(paths.SnippetsDir(a.dataDir), "probe.py")
	require.NoError(t, os.WriteFile(probe, []byte("print('{}')\n"), 0o600))

	require.Eventually(t, func() bool {
		_, ok := a.cache.ByID(wf.ID)
		return ok
	}, 3*time.Second, 50*time.Millisecond)
}

func TestNew_RejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Timezone = "Mars/Olympus"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timezone")
}
