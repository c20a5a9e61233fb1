package storage_test

import (
	"context"
	"testing"

	"github.com/minus-twelve/tablesess"
	"github.com/minus-twelve/tablesess/storage"
	"github.com/minus-twelve/tablesess/storage/storagetest"
	"github.com/minus-twelve/tablesess/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_Contract(t *testing.T) {
	storagetest.RunBackendContract(t, func(t *testing.T) tablesess.Backend {
		return storage.NewMemoryBackend("sessions", "pk", types.MemoryConfig{})
	})
}

func TestMemoryBackend_Paged_Contract(t *testing.T) {
	storagetest.RunBackendContract(t, func(t *testing.T) tablesess.Backend {
		return storage.NewMemoryBackend("sessions", "pk", types.MemoryConfig{PageSize: 4})
	})
}

func TestMemoryBackend_MaxRowsEvictsOldest(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend("sessions", "pk", types.MemoryConfig{MaxRows: 2})
	require.NoError(t, b.EnsureTable(ctx))

	for _, sid := range []string{"a", "b", "c"} {
		require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: sid, Properties: map[string]interface{}{}}))
	}

	rows, err := b.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = b.Retrieve(ctx, "a")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = b.Retrieve(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryBackend_RetrieveReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend("sessions", "pk", types.MemoryConfig{})
	require.NoError(t, b.EnsureTable(ctx))
	require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: "sid", Properties: map[string]interface{}{"a": "1"}}))

	got, err := b.Retrieve(ctx, "sid")
	require.NoError(t, err)
	got.Properties["a"] = "changed"

	again, err := b.Retrieve(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "1", again.Properties["a"])
}

func TestMemoryBackend_DropTable(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend("sessions", "pk", types.MemoryConfig{})
	require.NoError(t, b.EnsureTable(ctx))
	require.NoError(t, b.Upsert(ctx, types.Entity{RowKey: "sid", Properties: map[string]interface{}{}}))

	b.DropTable()

	_, err := b.Retrieve(ctx, "sid")
	assert.ErrorIs(t, err, types.ErrTableMissing)
}
