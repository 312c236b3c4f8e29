package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.Level = level
	cfg.AddSource = false
	return NewLogger(cfg), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLogger_KeyValues(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.WithComponent("engine").WithSession("s1", "t1").Info("engine.turn.start", "round", 2)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "engine.turn.start", lines[0]["msg"])
	assert.Equal(t, "engine", lines[0]["component"])
	assert.Equal(t, "s1", lines[0]["session_id"])
	assert.Equal(t, "t1", lines[0]["turn_id"])
	assert.Equal(t, float64(2), lines[0]["round"])
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	assert.Len(t, decodeLines(t, buf), 1)
}

func TestStructuredLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.LogToolCall("rag_search", 10*time.Millisecond, true, nil)
	l.LogModelCall("qwen/qwen3-8b", 1, time.Second, false, errors.New("refused"))
	l.LogTurn("error", 2, time.Second, errors.New("timeout"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "rag_search", lines[0]["tool_name"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "refused", lines[1]["error"])
	assert.Equal(t, "WARN", lines[2]["level"])
	assert.Equal(t, float64(2), lines[2]["tool_calls"])
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	l.Info("hidden")
	l.Warn("engine.turn.failed", "session_id", "s1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "engine.turn.failed", lines[0]["msg"])
	assert.Equal(t, "s1", lines[0]["session_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
}
