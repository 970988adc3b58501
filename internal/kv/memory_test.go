package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "qq_event_dedup:20250801:E1", "1", time.Minute))

	val, found, err := store.Get(ctx, "qq_event_dedup:20250801:E1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", val)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	val, found, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, val)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", "v", 30*time.Millisecond))

	_, found, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(60 * time.Millisecond)

	_, found, err = store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, found, "key should expire after its TTL")
}

func TestMemoryStore_NoExpiration(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "forever", "v", NoExpiration))

	time.Sleep(20 * time.Millisecond)

	_, found, err := store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, found)
}

func TestMemoryStore_SetNX(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "dedup", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "first SetNX should win")

	ok, err = store.SetNX(ctx, "dedup", "2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second SetNX should lose")

	val, _, err := store.Get(ctx, "dedup")
	require.NoError(t, err)
	require.Equal(t, "1", val, "losing SetNX must not overwrite")
}

func TestMemoryStore_SetNXAfterExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "dedup", "1", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	ok, err = store.SetNX(ctx, "dedup", "2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "SetNX should win again after the key expired")
}

func TestMemoryStore_DeleteAndExists(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", NoExpiration))

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.Delete(ctx, "k"))

	exists, err = store.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStore_ClosedOperations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Close())

	_, _, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrClosed)

	err = store.Set(ctx, "k", "v", time.Minute)
	require.ErrorIs(t, err, ErrClosed)

	_, err = store.SetNX(ctx, "k", "v", time.Minute)
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, store.Delete(ctx, "k"), ErrClosed)
	require.ErrorIs(t, store.Ping(ctx), ErrClosed)

	// Close is idempotent.
	require.NoError(t, store.Close())
}
