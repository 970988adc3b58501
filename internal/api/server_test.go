package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/adapter"
	"botweave/internal/kv"
	"botweave/internal/workflow"
	"botweave/internal/workflow/node"
)

func TestServer_StartStop(t *testing.T) {
	reg := workflow.NewRegistry()
	node.RegisterBuiltins(reg, node.Deps{})
	flows := &fakeWorkflowRepo{}
	cache := workflow.NewCache(workflow.CacheParams{
		Workflows:     flows,
		Subscriptions: fakeSubsRepo{},
		Registry:      reg,
	})
	_, err := cache.Reload()
	require.NoError(t, err)

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	srv, err := NewServer(ServerConfig{
		Addr: "127.0.0.1:0",
		Handler: HandlerConfig{
			Bots:      newFakeBotRepo(),
			Workflows: flows,
			Adapters:  adapter.NewManager(),
			Cache:     cache,
			Registry:  reg,
			KV:        store,
		},
	})
	require.NoError(t, err)
	require.Greater(t, srv.Port(), 0, "port 0 resolves to a real port at bind time")

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", srv.Port()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-done:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after Stop")
	}
}
