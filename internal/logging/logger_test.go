package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/minus-twelve/tablesess/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestNew_Defaults(t *testing.T) {
	log, err := New(types.LogConfig{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.Equal(t, os.Stdout, log.Out)
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tablesess.log")
	log, err := New(types.LogConfig{Level: "debug", Format: "json", Output: "file", File: path})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	lj, ok := log.Out.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 100, lj.MaxSize)

	log.WithField("op", "count").Info("hello")
	require.NoError(t, lj.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"op":"count"`)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(types.LogConfig{Output: "file"})
	assert.Error(t, err)

	_, err = New(types.LogConfig{Output: "syslog"})
	assert.Error(t, err)

	_, err = New(types.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"WARNING": logrus.WarnLevel,
		" error ": logrus.ErrorLevel,
		"trace":   logrus.TraceLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
