package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"botweave/internal/domain"
	"botweave/internal/kv"
	"botweave/internal/log"
)

// globalsKVKey is the KV mirror of the global-variable cache, readable
// by other processes without a database round trip.
const globalsKVKey = "workflow:globals"

// Globals is the in-process cache of global variables. The database is
// the source of truth; every mutation writes through and re-mirrors the
// whole map to the KV store.
type Globals struct {
	mu     sync.RWMutex
	values map[string]string

	repo  domain.GlobalVariableRepository
	store kv.Store
}

// NewGlobals wires the cache to its backing repository and KV mirror.
func NewGlobals(repo domain.GlobalVariableRepository, store kv.Store) *Globals {
	return &Globals{values: make(map[string]string), repo: repo, store: store}
}

// Load replaces the cache from the database and refreshes the KV
// mirror. It returns the number of variables loaded.
func (g *Globals) Load(ctx context.Context) (int, error) {
	vars, err := g.repo.List()
	if err != nil {
		return 0, fmt.Errorf("failed to load global variables: %w", err)
	}
	values := make(map[string]string, len(vars))
	for _, v := range vars {
		values[v.Key] = v.Value
	}

	g.mu.Lock()
	g.values = values
	g.mu.Unlock()

	g.mirror(ctx)
	log.Info(log.CatEngine, "global variables loaded", "count", len(values))
	return len(values), nil
}

// Get returns one global variable. A miss falls back to the KV mirror,
// which covers reads before the first Load and values written by
// another process.
func (g *Globals) Get(ctx context.Context, key string) (string, bool) {
	g.mu.RLock()
	v, ok := g.values[key]
	g.mu.RUnlock()
	if ok {
		return v, true
	}

	mirrored, loaded := g.loadMirror(ctx)
	if !loaded {
		return "", false
	}
	g.mu.Lock()
	g.values = mirrored
	v, ok = g.values[key]
	g.mu.Unlock()
	return v, ok
}

// Snapshot returns a copy of all global variables for one engine run.
func (g *Globals) Snapshot(ctx context.Context) map[string]string {
	g.mu.RLock()
	empty := len(g.values) == 0
	g.mu.RUnlock()

	if empty {
		if mirrored, loaded := g.loadMirror(ctx); loaded {
			g.mu.Lock()
			g.values = mirrored
			g.mu.Unlock()
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.values))
	for k, v := range g.values {
		out[k] = v
	}
	return out
}

// Set writes a global variable through to the database, updates the
// cache, and refreshes the mirror.
func (g *Globals) Set(ctx context.Context, key, value string, isSecret bool) error {
	if err := g.repo.Upsert(&domain.GlobalVariable{Key: key, Value: value, IsSecret: isSecret}); err != nil {
		return fmt.Errorf("failed to set global variable %q: %w", key, err)
	}
	g.mu.Lock()
	g.values[key] = value
	g.mu.Unlock()
	g.mirror(ctx)
	return nil
}

// Delete removes a global variable from the database, the cache, and
// the mirror.
func (g *Globals) Delete(ctx context.Context, key string) error {
	if err := g.repo.Delete(key); err != nil {
		return fmt.Errorf("failed to delete global variable %q: %w", key, err)
	}
	g.mu.Lock()
	delete(g.values, key)
	g.mu.Unlock()
	g.mirror(ctx)
	return nil
}

// mirror pushes the current cache to the KV store. Mirror failures are
// logged, not returned: the database write already succeeded and the
// cache is authoritative for this process.
func (g *Globals) mirror(ctx context.Context) {
	g.mu.RLock()
	data, err := json.Marshal(g.values)
	g.mu.RUnlock()
	if err != nil {
		log.ErrorErr(log.CatEngine, "failed to encode globals mirror", err)
		return
	}
	if err := g.store.Set(ctx, globalsKVKey, string(data), kv.NoExpiration); err != nil {
		log.ErrorErr(log.CatEngine, "failed to write globals mirror", err)
	}
}

// loadMirror reads the KV mirror, reporting whether a usable map came
// back.
func (g *Globals) loadMirror(ctx context.Context) (map[string]string, bool) {
	raw, ok, err := g.store.Get(ctx, globalsKVKey)
	if err != nil || !ok {
		return nil, false
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false
	}
	return values, true
}
