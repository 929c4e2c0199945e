package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetupWriter_WithModule(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn")

	logger := WithModule("execsync")
	logger.Info("hidden")
	logger.Warn("stream dropped")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "module=execsync")
	assert.Contains(t, buf.String(), "stream dropped")
}
