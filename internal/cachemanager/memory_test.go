package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type botRoute struct {
	BotID    int64
	Protocol string
}

func TestNewInMemory_ZeroDurationsFallBack(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemory[string, string]("test", 0, 0)
	})
}

func TestInMemory_RoundTrip(t *testing.T) {
	cache := NewInMemory[string, botRoute]("bot-route", DefaultExpiration, DefaultCleanupInterval)
	route := botRoute{BotID: 7, Protocol: "qq"}
	cache.Set(context.Background(), "app:102030", route, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "app:102030")
	require.True(t, ok)
	require.Equal(t, route, got)
}

func TestInMemory_MissReturnsZero(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "app:missing")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemory_WrongStoredTypeReadsAsMiss(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)

	cache.cache.Set("app:102030", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "app:102030")
	require.False(t, ok, "mismatched stored type should read as a miss")
	require.Empty(t, got)
}

func TestInMemory_TypedKeys(t *testing.T) {
	type appID string
	cache := NewInMemory[appID, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), appID("102030"), "bot-7", DefaultExpiration)

	got, ok := cache.Get(context.Background(), appID("102030"))
	require.True(t, ok)
	require.Equal(t, "bot-7", got)
}

func TestInMemory_EntriesExpire(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "app:1", "bot-1", 30*time.Millisecond)

	time.Sleep(80 * time.Millisecond)

	_, ok := cache.Get(context.Background(), "app:1")
	require.False(t, ok, "entry should expire once its TTL passes")
}

func TestInMemory_GetWithRefreshRestartsTTL(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "app:hot", "bot-1", 50*time.Millisecond)
	cache.Set(context.Background(), "app:cold", "bot-2", 50*time.Millisecond)

	_, ok := cache.GetWithRefresh(context.Background(), "app:hot", time.Second)
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	_, ok = cache.Get(context.Background(), "app:hot")
	require.True(t, ok, "refreshed entry should outlive its original TTL")
	_, ok = cache.Get(context.Background(), "app:cold")
	require.False(t, ok, "unrefreshed entry should expire on schedule")
}

func TestInMemory_GetWithRefreshMiss(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.GetWithRefresh(context.Background(), "app:1", time.Minute)
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemory_Delete(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "app:1", "bot-1", DefaultExpiration)

	require.NoError(t, cache.Delete(context.Background(), "app:1"))

	_, ok := cache.Get(context.Background(), "app:1")
	require.False(t, ok)
}

func TestInMemory_DeleteNoKeys(t *testing.T) {
	cache := NewInMemory[string, string]("bot-route", DefaultExpiration, DefaultCleanupInterval)

	require.NoError(t, cache.Delete(context.Background()))
}
