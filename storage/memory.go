package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/minus-twelve/tablesess/types"
)

// MemoryBackend keeps one table partition in process memory. Like a remote
// table it must be created before rows can be read or written.
type MemoryBackend struct {
	table        string
	partitionKey string
	rows         map[string]types.Entity
	created      bool
	mutex        sync.RWMutex
	maxRows      int
	pageSize     int
}

func NewMemoryBackend(table, partitionKey string, cfg types.MemoryConfig) *MemoryBackend {
	return &MemoryBackend{
		table:        table,
		partitionKey: partitionKey,
		rows:         make(map[string]types.Entity),
		maxRows:      cfg.MaxRows,
		pageSize:     cfg.PageSize,
	}
}

func (m *MemoryBackend) PartitionKey() string {
	return m.partitionKey
}

func (m *MemoryBackend) EnsureTable(_ context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.created = true
	return nil
}

// DropTable removes the table and every row in it.
func (m *MemoryBackend) DropTable() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.created = false
	m.rows = make(map[string]types.Entity)
}

func (m *MemoryBackend) Retrieve(_ context.Context, rowKey string) (types.Entity, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.created {
		return types.Entity{}, types.ErrTableMissing
	}
	e, exists := m.rows[rowKey]
	if !exists {
		return types.Entity{}, types.ErrNotFound
	}
	return copyEntity(e), nil
}

func (m *MemoryBackend) Upsert(_ context.Context, e types.Entity) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.created {
		return types.ErrTableMissing
	}

	if _, exists := m.rows[e.RowKey]; !exists && m.maxRows > 0 && len(m.rows) >= m.maxRows {
		if oldest := m.findOldestRow(); oldest != "" {
			delete(m.rows, oldest)
		}
	}

	e = copyEntity(e)
	e.PartitionKey = m.partitionKey
	e.Timestamp = time.Now().UTC()
	m.rows[e.RowKey] = e
	return nil
}

func (m *MemoryBackend) findOldestRow() string {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range m.rows {
		if oldestKey == "" || e.Timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.Timestamp
		}
	}
	return oldestKey
}

func (m *MemoryBackend) Delete(_ context.Context, rowKey string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.rows, rowKey)
	return nil
}

// QueryAll returns the partition ordered by row key, read page by page when
// a page size is configured.
func (m *MemoryBackend) QueryAll(ctx context.Context) ([]types.Entity, error) {
	var all []types.Entity
	var continuation string
	for {
		page, next, err := m.queryPage(continuation)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		continuation = next
	}
}

// queryPage returns the rows whose key sorts at or after from, and the key
// the following page starts at.
func (m *MemoryBackend) queryPage(from string) ([]types.Entity, string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.created {
		return nil, "", types.ErrTableMissing
	}

	keys := make([]string, 0, len(m.rows))
	for key := range m.rows {
		if key >= from {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var next string
	if m.pageSize > 0 && len(keys) > m.pageSize {
		next = keys[m.pageSize]
		keys = keys[:m.pageSize]
	}

	page := make([]types.Entity, 0, len(keys))
	for _, key := range keys {
		page = append(page, copyEntity(m.rows[key]))
	}
	return page, next, nil
}

func copyEntity(e types.Entity) types.Entity {
	props := make(map[string]interface{}, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	e.Properties = props
	return e
}
