package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/minus-twelve/tablesess"
	"github.com/minus-twelve/tablesess/storage"
	"github.com/minus-twelve/tablesess/storage/storagetest"
	"github.com/minus-twelve/tablesess/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisBackend_Contract(t *testing.T) {
	storagetest.RunBackendContract(t, func(t *testing.T) tablesess.Backend {
		_, client := newRedisClient(t)
		return storage.NewRedisBackendFromClient(client, "sessions", "pk", "test:")
	})
}

func TestRedisBackend_NewPingsServer(t *testing.T) {
	mr, _ := newRedisClient(t)

	b, err := storage.NewRedisBackend(context.Background(), "sessions", "pk", types.RedisConfig{
		Addr:   mr.Addr(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "pk", b.PartitionKey())
}

func TestRedisBackend_NewFailsWithoutServer(t *testing.T) {
	mr, _ := newRedisClient(t)
	addr := mr.Addr()
	mr.Close()

	_, err := storage.NewRedisBackend(context.Background(), "sessions", "pk", types.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestRedisBackend_PartitionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClient(t)

	a := storage.NewRedisBackendFromClient(client, "sessions", "pk-a", "test:")
	b := storage.NewRedisBackendFromClient(client, "sessions", "pk-b", "test:")
	require.NoError(t, a.EnsureTable(ctx))

	require.NoError(t, a.Upsert(ctx, types.Entity{RowKey: "sid", Properties: map[string]interface{}{"v": "a"}}))

	_, err := b.Retrieve(ctx, "sid")
	assert.ErrorIs(t, err, types.ErrNotFound)

	rows, err := b.QueryAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRedisBackend_QueryAllPrunesStaleIndex(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisClient(t)

	b := storage.NewRedisBackendFromClient(client, "sessions", "pk", "test:")
	require.NoError(t, b.EnsureTable(ctx))
	require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: "live", Properties: map[string]interface{}{"v": "1"}}))
	require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: "gone", Properties: map[string]interface{}{"v": "2"}}))

	mr.Del("test:sessions:pk:row:gone")

	rows, err := b.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "live", rows[0].RowKey)

	members, err := mr.Members("test:sessions:pk:idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, members)
}

func TestRedisBackend_StringifiesProperties(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClient(t)

	b := storage.NewRedisBackendFromClient(client, "sessions", "pk", "test:")
	require.NoError(t, b.EnsureTable(ctx))
	require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: "sid", Properties: map[string]interface{}{"n": 42}}))

	got, err := b.Retrieve(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "42", got.Properties["n"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestRedisBackend_QueryAllAcrossScanPages(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClient(t)

	b := storage.NewRedisBackendFromClient(client, "sessions", "pk", "test:")
	require.NoError(t, b.EnsureTable(ctx))

	const n = 250
	for i := 0; i < n; i++ {
		require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: fmt.Sprintf("sid-%03d", i), Properties: map[string]interface{}{}}))
	}

	rows, err := b.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, n)
	assert.Equal(t, "sid-000", rows[0].RowKey)
	assert.Equal(t, "sid-249", rows[n-1].RowKey)
}

func TestRedisBackend_RowKeysCannotNameInternalKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisClient(t)
	b := storage.NewRedisBackendFromClient(client, "sessions", "pk", "test:")
	require.NoError(t, b.EnsureTable(ctx))

	for _, sid := range []string{"a", "rows", "idx", "tables"} {
		require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: sid, Properties: map[string]interface{}{"user": sid}}))
	}

	rows, err := b.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	members, err := mr.Members("test:sessions:pk:idx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "rows", "idx", "tables"}, members)

	require.NoError(t, b.Delete(ctx, "idx"))
	rows, err = b.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
