package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(WARN)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
}

func TestLogger_TextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.With(Component("trainer")).Info("epoch done", Int("epoch", 5), Float("learn_rate", 0.25))

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[INFO] epoch done component=trainer")
	assert.Contains(t, line, "epoch=5 learn_rate=0.25")
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetFormat("JSON")

	logger.Error("run failed", errors.New("boom"), String("run_id", "abc"))

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "run failed", entry.Message)
	assert.Equal(t, "boom", entry.Error)
	assert.Equal(t, "abc", entry.Fields["run_id"])
}

func TestLogger_WithSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := New()
	parent.SetOutput(&buf)
	child := parent.With(String("k", "v"))

	parent.SetLevel(ERROR)
	child.Info("suppressed")
	assert.Empty(t, buf.String())
	assert.True(t, child.Enabled(ERROR))
}
