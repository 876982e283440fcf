package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
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
	log := New("info", true, &buf)
	log.Debug("hidden")
	log.Info("search started", "workers", 4)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "search started", rec["msg"])
	assert.Equal(t, "fistulosum", rec["service"])
	assert.Equal(t, float64(4), rec["workers"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New("debug", false, &buf).Debug("match", "candidate", 42)
	assert.Contains(t, buf.String(), "candidate=42")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("nothing") })
}
