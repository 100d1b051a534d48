package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Output: &buf, Component: "flow"})
	require.NoError(t, err)

	l.Debug("worker started", "agent", "PlusAgent[A,B->C]")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "worker started", rec["msg"])
	assert.Equal(t, "flow", rec["component"])
	assert.Equal(t, "PlusAgent[A,B->C]", rec["agent"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "text", Output: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestWithKeepsNop(t *testing.T) {
	var l Logger = Nop{}
	assert.Equal(t, l, With(l, "k", "v"))
}
