package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	WithChain(WithRun(l, "run-1"), 2).Info("chain started")
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "chain started", entry["msg"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.EqualValues(t, 2, entry["chain"])
	assert.Contains(t, entry, "timestamp")
	assert.True(t, IsDebug(l))
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "chatty", Output: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, IsDebug(l))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l, _ := New(Config{Level: "info", Output: &bytes.Buffer{}})
	assert.Same(t, l, OrNop(l))
}
