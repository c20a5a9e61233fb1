// Package storagetest holds a reusable suite that every table backend must
// pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/minus-twelve/tablesess"
	"github.com/minus-twelve/tablesess/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBackendContract verifies a Backend against the table semantics the
// session store relies on. newBackend must return a backend whose table has
// not been created yet.
func RunBackendContract(t *testing.T, newBackend func(t *testing.T) tablesess.Backend) {
	ctx := context.Background()

	t.Run("Table Missing", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.Retrieve(ctx, "sid")
		assert.ErrorIs(t, err, types.ErrTableMissing)

		err = b.Upsert(ctx, entity(b, "sid", map[string]interface{}{"user": "alice"}))
		assert.ErrorIs(t, err, types.ErrTableMissing)

		_, err = b.QueryAll(ctx)
		assert.ErrorIs(t, err, types.ErrTableMissing)
	})

	t.Run("EnsureTable Is Idempotent", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))
		require.NoError(t, b.EnsureTable(ctx))

		rows, err := b.QueryAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Retrieve Missing Row", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))

		_, err := b.Retrieve(ctx, "missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("Upsert And Retrieve", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))

		err := b.Upsert(ctx, entity(b, "sid-1", map[string]interface{}{
			"user":   "alice",
			"cookie": `{"originalMaxAge":5000}`,
		}))
		require.NoError(t, err)

		got, err := b.Retrieve(ctx, "sid-1")
		require.NoError(t, err)
		assert.Equal(t, "sid-1", got.RowKey)
		assert.Equal(t, b.PartitionKey(), got.PartitionKey)
		assert.Equal(t, "alice", got.Properties["user"])
		assert.Equal(t, `{"originalMaxAge":5000}`, got.Properties["cookie"])
	})

	t.Run("Upsert Replaces Whole Row", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))

		require.NoError(t, b.Upsert(ctx, entity(b, "sid", map[string]interface{}{"a": "1", "b": "2"})))
		require.NoError(t, b.Upsert(ctx, entity(b, "sid", map[string]interface{}{"a": "3"})))

		got, err := b.Retrieve(ctx, "sid")
		require.NoError(t, err)
		assert.Equal(t, "3", got.Properties["a"])
		assert.NotContains(t, got.Properties, "b")

		rows, err := b.QueryAll(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))

		assert.NoError(t, b.Delete(ctx, "never-stored"))

		require.NoError(t, b.Upsert(ctx, entity(b, "sid", map[string]interface{}{"a": "1"})))
		require.NoError(t, b.Delete(ctx, "sid"))

		_, err := b.Retrieve(ctx, "sid")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("QueryAll Returns Every Row", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))

		const n = 25
		for i := 0; i < n; i++ {
			sid := fmt.Sprintf("sid-%02d", i)
			require.NoError(t, b.Upsert(ctx, entity(b, sid, map[string]interface{}{"n": fmt.Sprint(i)})))
		}

		rows, err := b.QueryAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, n)

		seen := make(map[string]bool, n)
		for _, r := range rows {
			seen[r.RowKey] = true
		}
		assert.Len(t, seen, n)
	})

	t.Run("Row Keys Are Opaque", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureTable(ctx))

		sids := []string{"plain", "rows", "idx", "tables", "row:plain", "a:b:c"}
		for _, sid := range sids {
			require.NoError(t, b.Upsert(ctx, entity(b, sid, map[string]interface{}{"user": sid})), sid)
		}

		rows, err := b.QueryAll(ctx)
		require.NoError(t, err)
		got := make([]string, 0, len(rows))
		for _, r := range rows {
			got = append(got, r.RowKey)
			assert.Equal(t, r.RowKey, r.Properties["user"])
		}
		assert.ElementsMatch(t, sids, got)

		for _, sid := range sids {
			e, err := b.Retrieve(ctx, sid)
			require.NoError(t, err, sid)
			assert.Equal(t, sid, e.Properties["user"])
		}

		require.NoError(t, b.Delete(ctx, "rows"))
		rows, err = b.QueryAll(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, len(sids)-1)
	})
}

func entity(b tablesess.Backend, rowKey string, props map[string]interface{}) types.Entity {
	return types.Entity{
		PartitionKey: b.PartitionKey(),
		RowKey:       rowKey,
		Properties:   props,
	}
}
