package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/minus-twelve/tablesess/types"
	"github.com/redis/go-redis/v9"
)

const (
	timestampField = "Timestamp"
	scanCount      = 100
)

// RedisBackend maps a table partition onto Redis: one hash per row
// (<prefix><table>:<pk>:row:<rk>), a set indexing the partition's row keys
// (<prefix><table>:<pk>:idx), and a registry set of created tables.
type RedisBackend struct {
	client       *redis.Client
	prefix       string
	table        string
	partitionKey string
}

func NewRedisBackend(ctx context.Context, table, partitionKey string, cfg types.RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return NewRedisBackendFromClient(client, table, partitionKey, cfg.Prefix), nil
}

func NewRedisBackendFromClient(client *redis.Client, table, partitionKey, prefix string) *RedisBackend {
	return &RedisBackend{
		client:       client,
		prefix:       prefix,
		table:        table,
		partitionKey: partitionKey,
	}
}

func (r *RedisBackend) registryKey() string {
	return r.prefix + "tables"
}

func (r *RedisBackend) partitionPrefix() string {
	return r.prefix + r.table + ":" + r.partitionKey + ":"
}

// Row hashes live under "row:" so that no row key can name the index.
func (r *RedisBackend) rowKey(rowKey string) string {
	return r.partitionPrefix() + "row:" + rowKey
}

func (r *RedisBackend) indexKey() string {
	return r.partitionPrefix() + "idx"
}

func (r *RedisBackend) PartitionKey() string {
	return r.partitionKey
}

func (r *RedisBackend) EnsureTable(ctx context.Context) error {
	return r.client.SAdd(ctx, r.registryKey(), r.table).Err()
}

func (r *RedisBackend) tableExists(ctx context.Context) error {
	exists, err := r.client.SIsMember(ctx, r.registryKey(), r.table).Result()
	if err != nil {
		return err
	}
	if !exists {
		return types.ErrTableMissing
	}
	return nil
}

func (r *RedisBackend) Retrieve(ctx context.Context, rowKey string) (types.Entity, error) {
	if err := r.tableExists(ctx); err != nil {
		return types.Entity{}, err
	}

	fields, err := r.client.HGetAll(ctx, r.rowKey(rowKey)).Result()
	if err != nil {
		return types.Entity{}, err
	}
	if len(fields) == 0 {
		return types.Entity{}, types.ErrNotFound
	}
	return r.entity(rowKey, fields), nil
}

func (r *RedisBackend) entity(rowKey string, fields map[string]string) types.Entity {
	e := types.Entity{
		PartitionKey: r.partitionKey,
		RowKey:       rowKey,
		Properties:   make(map[string]interface{}, len(fields)),
	}
	for k, v := range fields {
		if k == timestampField {
			e.Timestamp, _ = time.Parse(time.RFC3339Nano, v)
			continue
		}
		e.Properties[k] = v
	}
	return e
}

func (r *RedisBackend) Upsert(ctx context.Context, e types.Entity) error {
	if err := r.tableExists(ctx); err != nil {
		return err
	}

	values := make(map[string]interface{}, len(e.Properties)+1)
	for k, v := range e.Properties {
		if k == timestampField || v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}
	values[timestampField] = time.Now().UTC().Format(time.RFC3339Nano)

	key := r.rowKey(e.RowKey)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	pipe.SAdd(ctx, r.indexKey(), e.RowKey)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) Delete(ctx context.Context, rowKey string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.rowKey(rowKey))
	pipe.SRem(ctx, r.indexKey(), rowKey)

	_, err := pipe.Exec(ctx)
	return err
}

// QueryAll walks the partition index with SSCAN and loads the rows in one
// pipeline. Index members whose row has vanished are pruned.
func (r *RedisBackend) QueryAll(ctx context.Context) ([]types.Entity, error) {
	if err := r.tableExists(ctx); err != nil {
		return nil, err
	}

	var rowKeys []string
	var cursor uint64
	for {
		keys, next, err := r.client.SScan(ctx, r.indexKey(), cursor, "", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan partition index: %w", err)
		}
		rowKeys = append(rowKeys, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(rowKeys)
	rowKeys = dedupSorted(rowKeys)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(rowKeys))
	for i, rk := range rowKeys {
		cmds[i] = pipe.HGetAll(ctx, r.rowKey(rk))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("load partition rows: %w", err)
		}
	}

	entities := make([]types.Entity, 0, len(rowKeys))
	var stale []interface{}
	for i, rk := range rowKeys {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			stale = append(stale, rk)
			continue
		}
		entities = append(entities, r.entity(rk, fields))
	}

	if len(stale) > 0 {
		r.client.SRem(ctx, r.indexKey(), stale...)
	}
	return entities, nil
}

// SSCAN may return a member more than once.
func dedupSorted(keys []string) []string {
	out := keys[:0]
	for _, k := range keys {
		if len(out) > 0 && out[len(out)-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
