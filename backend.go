package tablesess

import (
	"context"

	"github.com/minus-twelve/tablesess/types"
)

var (
	ErrNotFound     = types.ErrNotFound
	ErrTableMissing = types.ErrTableMissing
)

// Backend is a single table partition in a remote key-value table service.
// Implementations are bound to one table name and partition key and must be
// safe for concurrent use.
type Backend interface {
	// PartitionKey is the partition every row of this backend lives in.
	PartitionKey() string

	// Retrieve returns the row stored under rowKey, ErrNotFound when there is
	// none, or ErrTableMissing when the table does not exist.
	Retrieve(ctx context.Context, rowKey string) (types.Entity, error)

	// Upsert inserts or replaces the row identified by e.RowKey.
	Upsert(ctx context.Context, e types.Entity) error

	// Delete removes the row. Deleting a missing row is not an error.
	Delete(ctx context.Context, rowKey string) error

	// QueryAll returns every row of the partition, following backend pages.
	QueryAll(ctx context.Context) ([]types.Entity, error)

	// EnsureTable creates the table if it does not exist yet.
	EnsureTable(ctx context.Context) error
}
