package workflow

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"botweave/internal/domain"
	"botweave/internal/kv"
)

// memoryVariableRepo is an in-memory GlobalVariableRepository for tests.
type memoryVariableRepo struct {
	mu   sync.Mutex
	vars map[string]*domain.GlobalVariable
}

func newMemoryVariableRepo() *memoryVariableRepo {
	return &memoryVariableRepo{vars: make(map[string]*domain.GlobalVariable)}
}

func (r *memoryVariableRepo) Upsert(v *domain.GlobalVariable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *v
	if existing, ok := r.vars[v.Key]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = int64(len(r.vars) + 1)
	}
	r.vars[v.Key] = &stored
	v.ID = stored.ID
	return nil
}

func (r *memoryVariableRepo) FindByKey(key string) (*domain.GlobalVariable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vars[key]
	if !ok {
		return nil, &domain.GlobalVariableNotFoundError{Key: key}
	}
	out := *v
	return &out, nil
}

func (r *memoryVariableRepo) List() ([]*domain.GlobalVariable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.vars))
	for k := range r.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*domain.GlobalVariable, 0, len(keys))
	for _, k := range keys {
		v := *r.vars[k]
		out = append(out, &v)
	}
	return out, nil
}

func (r *memoryVariableRepo) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vars[key]; !ok {
		return &domain.GlobalVariableNotFoundError{Key: key}
	}
	delete(r.vars, key)
	return nil
}

func TestGlobals_LoadAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryVariableRepo()
	require.NoError(t, repo.Upsert(&domain.GlobalVariable{Key: "city", Value: "Kyoto"}))
	require.NoError(t, repo.Upsert(&domain.GlobalVariable{Key: "token", Value: "abc", IsSecret: true}))

	g := NewGlobals(repo, kv.NewMemoryStore())
	n, err := g.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	v, ok := g.Get(ctx, "city")
	require.True(t, ok)
	require.Equal(t, "Kyoto", v)

	_, ok = g.Get(ctx, "missing")
	require.False(t, ok)
}

func TestGlobals_SetWritesThrough(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryVariableRepo()
	g := NewGlobals(repo, kv.NewMemoryStore())

	require.NoError(t, g.Set(ctx, "mode", "night", false))

	v, ok := g.Get(ctx, "mode")
	require.True(t, ok)
	require.Equal(t, "night", v)

	stored, err := repo.FindByKey("mode")
	require.NoError(t, err, "Set should persist to the repository")
	require.Equal(t, "night", stored.Value)
}

func TestGlobals_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryVariableRepo()
	g := NewGlobals(repo, kv.NewMemoryStore())
	require.NoError(t, g.Set(ctx, "mode", "night", false))

	require.NoError(t, g.Delete(ctx, "mode"))
	_, ok := g.Get(ctx, "mode")
	require.False(t, ok)
	_, err := repo.FindByKey("mode")
	require.Error(t, err, "Delete should remove the stored record")
}

func TestGlobals_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryVariableRepo()
	g := NewGlobals(repo, kv.NewMemoryStore())
	require.NoError(t, g.Set(ctx, "a", "1", false))

	snap := g.Snapshot(ctx)
	require.Equal(t, map[string]string{"a": "1"}, snap)

	snap["a"] = "mutated"
	v, _ := g.Get(ctx, "a")
	require.Equal(t, "1", v, "mutating a snapshot must not leak into the cache")
}

func TestGlobals_GetFallsBackToMirror(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	writer := NewGlobals(newMemoryVariableRepo(), store)
	require.NoError(t, writer.Set(ctx, "shared", "yes", false))

	// A second cache over the same KV store sees the mirrored value
	// without ever loading from its own (empty) repository.
	reader := NewGlobals(newMemoryVariableRepo(), store)
	v, ok := reader.Get(ctx, "shared")
	require.True(t, ok, "Get should fall back to the KV mirror")
	require.Equal(t, "yes", v)
}
