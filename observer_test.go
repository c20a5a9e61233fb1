package tablesess_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minus-twelve/tablesess"
	"github.com/minus-twelve/tablesess/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogObserver_DecodeWarningIsLogged(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	backend := newFaultyBackend(true)
	store := tablesess.NewTableStore(backend, tablesess.WithObserver(tablesess.NewLogObserver(logger)))
	require.NoError(t, backend.MemoryBackend.Upsert(ctx, types.Entity{
		RowKey:     "sid",
		Properties: map[string]interface{}{"cookie": "{oops"},
	}))

	_, err := store.Load(ctx, "sid")
	require.NoError(t, err)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["kind"] == string(tablesess.WarnDecodeDropped) {
			found = true
			assert.Equal(t, "cookie", e.Data["field"])
			assert.Equal(t, "sid", e.Data["sid"])
			assert.Equal(t, "load", e.Data["op"])
		}
	}
	assert.True(t, found, "decode warning logged")
}

func TestLogObserver_FailureIsLoggedAsError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	backend := newFaultyBackend(true)
	backend.queryErr = errors.New("unavailable")
	store := tablesess.NewTableStore(backend, tablesess.WithObserver(tablesess.NewLogObserver(logger)))

	_, err := store.Count(context.Background())
	require.Error(t, err)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, backend.queryErr, last.Data[logrus.ErrorKey])
}

func TestMetricsObserver(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := tablesess.NewMetricsObserver(tablesess.WithRegistry(reg), tablesess.WithNamespace("test"))

	backend := newFaultyBackend(false)
	store := tablesess.NewTableStore(backend,
		tablesess.WithObserver(tablesess.MultiObserver(tablesess.NopObserver(), metrics)),
		tablesess.WithClock(fixedClock),
	)

	saveWithExpiry(t, store, "old", -time.Hour, 1000)
	saveWithExpiry(t, store, "new", time.Hour, 1000)
	_, err := store.ClearExpired(ctx)
	require.NoError(t, err)

	// save/ok and clear_expired/ok
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "test_operations_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "test_operation_duration_seconds"))

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP test_table_provision_retries_total Operations retried after provisioning a missing table
# TYPE test_table_provision_retries_total counter
test_table_provision_retries_total{op="save"} 1
# HELP test_sweep_rows_total Rows visited by the expiration sweep by result
# TYPE test_sweep_rows_total counter
test_sweep_rows_total{result="deleted"} 1
test_sweep_rows_total{result="failed"} 0
test_sweep_rows_total{result="kept"} 1
test_sweep_rows_total{result="skipped"} 0
`), "test_table_provision_retries_total", "test_sweep_rows_total")
	assert.NoError(t, err)
}
