package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *OrchestratorLogger {
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	cfg.AddSource = false
	return NewLogger(cfg)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogKeyValueArgsBecomeAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Info("agent registered", "agent_id", "writer", "capabilities", []string{"write"})

	entry := decodeLine(t, &buf)
	assert.Equal(t, "agent registered", entry["msg"])
	assert.Equal(t, "writer", entry["agent_id"])
	assert.Equal(t, []any{"write"}, entry["capabilities"])
}

func TestLogDanglingKeyPreserved(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Warn("queue full", "queued", 3, "orphan")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "queue full", entry["msg"])
	assert.Equal(t, float64(3), entry["queued"])
	assert.Equal(t, "orphan", entry["!BADKEY"])
}

func TestLogRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.AddSource = false
	cfg.Level = LogLevelWarn
	l := NewLogger(cfg)

	l.Info("dropped", "key", "value")
	assert.Zero(t, buf.Len())

	l.Warn("kept", "key", "value")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestContextAttrsAttached(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).
		WithComponent("scheduler").
		WithRun("wf-1", "run-1").
		WithContext("tenant", "acme")

	l.Info("schedule fired", "schedule_id", "s1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "acme", entry["tenant"])
	assert.Equal(t, "s1", entry["schedule_id"])
}

func TestErrorWithStackAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.ErrorWithStack(errors.New("boom"), "run failed", "run_id", "run-1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "run failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.NotEmpty(t, entry["stack_trace"])
}
