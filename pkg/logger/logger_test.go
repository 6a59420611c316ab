package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{
		Level:  "warn",
		Format: FormatJSON,
		Output: &buf,
		Attrs:  []slog.Attr{slog.String("app", "schoolportal")},
	})

	log.Info("dropped")
	log.Warn("query slow", Endpoint("students"), Latency(2*time.Second), Err(errors.New("boom")))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "query slow", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "schoolportal", record["app"])
	assert.Equal(t, "students", record["endpoint"])
	assert.Equal(t, "boom", record["error"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Format: FormatText, Output: &buf})

	log.Debug("hydrated", Model("Student"), Connection("portal"), Component("elegant"))

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "model=Student")
	assert.Contains(t, out, "connection=portal")
	assert.Contains(t, out, "component=elegant")
}

func TestContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	log := New(DefaultOptions())
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
}
