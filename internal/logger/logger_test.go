package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := Init(Options{Service: "backtest", Level: slog.LevelInfo, Output: &buf})
	require.NotNil(t, l)

	slog.Debug("hidden")
	slog.Info("visible", "symbol", "AAPL")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "backtest", rec["service"])
	assert.Equal(t, "AAPL", rec["symbol"])
	assert.Equal(t, "visible", rec["msg"])
}

func TestInit_TextRoutesStdLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Service: "signalgw", Format: "text", Output: &buf})

	log.Printf("[gateway] client connected")
	out := buf.String()
	assert.Contains(t, out, "service=signalgw")
	assert.Contains(t, out, "[gateway] client connected")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceID(ctx))

	ctx = WithTraceID(ctx, "test-trace-123")
	assert.Equal(t, "test-trace-123", TraceID(ctx))
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("AAPL", ts)
	assert.True(t, strings.HasPrefix(tid, "AAPL-"), tid)
	assert.Contains(t, tid, "123456789")
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, LogWithTrace(ctx))

	ctx = WithTraceID(ctx, "abc-123")
	assert.Len(t, LogWithTrace(ctx), 1)
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Output: &buf})

	FromContext(WithTraceID(context.Background(), "run-1")).Info("step")
	assert.Contains(t, buf.String(), `"trace_id":"run-1"`)

	buf.Reset()
	FromContext(context.Background()).Info("step")
	assert.NotContains(t, buf.String(), "trace_id")
}
