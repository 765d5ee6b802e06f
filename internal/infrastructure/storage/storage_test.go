package storage

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageports "kilometers.ai/authclient/internal/core/ports/storage"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestKeyValueStores_RoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	fileStore, err := NewSecureFileStore(t.TempDir())
	require.NoError(t, err)

	stores := map[string]storageports.KeyValueStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  NewRedisStore(rdb, "test"),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "access_token")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "access_token", "at-456"))
			require.NoError(t, store.Set(ctx, "refresh_token", "rt-789"))

			v, ok, err := store.Get(ctx, "access_token")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "at-456", v)

			require.NoError(t, store.Remove(ctx, "access_token"))
			require.NoError(t, store.Remove(ctx, "access_token"), "removing a missing key is not an error")

			_, ok, err = store.Get(ctx, "access_token")
			require.NoError(t, err)
			assert.False(t, ok)

			v, ok, err = store.Get(ctx, "refresh_token")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "rt-789", v)
		})
	}
}

func TestSecureFileStore_EncryptedAtRest(t *testing.T) {
	store, err := NewSecureFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "access_token", "super-secret-token"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "super-secret-token")
}

func TestSecureFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := NewSecureFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), "refresh_token", "rt-123"))

	second, err := NewSecureFileStore(dir)
	require.NoError(t, err)
	v, ok, err := second.Get(context.Background(), "refresh_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rt-123", v)
}

func TestSecureFileStore_RemoveLastKeyDeletesFile(t *testing.T) {
	store, err := NewSecureFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "access_token", "x"))
	require.NoError(t, store.Remove(ctx, "access_token"))

	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestSecureFileStore_CorruptFile(t *testing.T) {
	store, err := NewSecureFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("not encrypted"), 0600))

	_, _, err = store.Get(context.Background(), "access_token")
	assert.Error(t, err)

	// Writing new credentials replaces the unreadable file
	require.NoError(t, store.Set(context.Background(), "access_token", "fresh"))
	v, ok, err := store.Get(context.Background(), "access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "tenant-a")

	require.NoError(t, store.Set(context.Background(), "access_token", "at"))

	assert.True(t, mr.Exists("tenant-a:access_token"))
	v, err := mr.Get("tenant-a:access_token")
	require.NoError(t, err)
	assert.Equal(t, "at", v)
}
