package tablesess_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minus-twelve/tablesess"
	"github.com/minus-twelve/tablesess/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tablesess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := tablesess.LoadConfig(writeConfig(t, "backend: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, tablesess.DefaultTableName, cfg.TableName)
	assert.Equal(t, tablesess.DefaultPartitionKey, cfg.PartitionKey)
	assert.Equal(t, "@every 1h", cfg.Sweep.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Azure.Timeout)
}

func TestLoadConfig_Azure(t *testing.T) {
	t.Setenv("TABLESESS_AZURE_ACCOUNT_KEY", "a2V5")

	cfg, err := tablesess.LoadConfig(writeConfig(t, `
backend: azure
table_name: WEBSESSIONS
partition_key: SITE1
azure:
  account_name: acct
  timeout: 5s
sweep:
  schedule: "*/15 * * * *"
  policy: at_deadline
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "WEBSESSIONS", cfg.TableName)
	assert.Equal(t, "SITE1", cfg.PartitionKey)
	assert.Equal(t, "acct", cfg.Azure.AccountName)
	assert.Equal(t, "a2V5", cfg.Azure.AccountKey)
	assert.Equal(t, 5*time.Second, cfg.Azure.Timeout)
	assert.Equal(t, "at_deadline", cfg.Sweep.Policy)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("TABLESESS_AZURE_ACCOUNT_NAME", "")
	t.Setenv("TABLESESS_AZURE_ACCOUNT_KEY", "")
	t.Setenv("TABLESESS_AZURE_CONNECTION_STRING", "")

	tests := map[string]string{
		"azure without credentials": "backend: azure\n",
		"redis without addr":        "backend: redis\n",
		"unknown backend":           "backend: cassandra\n",
		"unknown policy":            "backend: memory\nsweep:\n  policy: never\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tablesess.LoadConfig(writeConfig(t, body))
			assert.ErrorIs(t, err, tablesess.ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_Unreadable(t *testing.T) {
	_, err := tablesess.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = tablesess.LoadConfig(writeConfig(t, "backend: [memory"))
	assert.Error(t, err)
}

func TestCreateStore_Memory(t *testing.T) {
	cfg := tablesess.DefaultConfig()
	cfg.Sweep.Policy = "at_deadline"

	store, err := tablesess.CreateStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryBackend{}, store.Backend())
	assert.Equal(t, tablesess.DefaultPartitionKey, store.Backend().PartitionKey())
}

func TestCreateBackend_Unknown(t *testing.T) {
	cfg := tablesess.DefaultConfig()
	cfg.Backend = "cassandra"

	_, err := tablesess.CreateBackend(context.Background(), cfg)
	assert.ErrorIs(t, err, tablesess.ErrInvalidConfig)
}

func TestStoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	a := tablesess.DefaultConfig()
	b := tablesess.DefaultConfig()
	b.PartitionKey = "OTHER"

	storeA, err := tablesess.CreateStore(ctx, a)
	require.NoError(t, err)
	storeB, err := tablesess.CreateStore(ctx, b)
	require.NoError(t, err)

	require.NoError(t, storeA.Save(ctx, "sid", map[string]interface{}{"v": "a"}))

	sess, err := storeB.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, sess)
}
