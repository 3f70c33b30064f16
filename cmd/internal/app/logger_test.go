package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")

	log.Info("dropped")
	log.Warn("identity.lookup.failed", "reason", "status_blocked")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "identity.lookup.failed", rec["msg"])
	assert.Equal(t, "status_blocked", rec["reason"])
	assert.Contains(t, rec, "source")
}

func TestNewLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "debug", "pretty")

	log.Debug("store.enabled", "driver", "sqlite")

	line := buf.String()
	assert.Contains(t, line, "lvl=[DEBUG]")
	assert.Contains(t, line, "msg=store.enabled")
	assert.Contains(t, line, "driver=sqlite")
	assert.NotContains(t, line, "\x1b[")
}
