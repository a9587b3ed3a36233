package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf, false).WithComponent("parser")

	l.Info("spec parsed", "endpoints", 40, "duration_ms", 12)

	var e map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "spec parsed", e["message"])
	assert.Equal(t, "parser", e["component"])
	fields := e["fields"].(map[string]interface{})
	assert.EqualValues(t, 40, fields["endpoints"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelWarn, &buf, false)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "visible")
}

func TestTraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelDebug, &buf, false)

	ctx := WithTraceID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", TraceID(ctx))

	l.InfoContext(ctx, "handling request")

	var e map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, "abc-123", e["trace_id"])
}

func TestWithTraceIDMintsWhenEmpty(t *testing.T) {
	ctx := WithTraceID(context.Background(), "")
	assert.NotEmpty(t, TraceID(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
