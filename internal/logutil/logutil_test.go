package logutil

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, Level(false))
	log.Debug("hidden")
	log.Info("shown", "label", "MONARCH")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "label=MONARCH")
	assert.NotContains(t, buf.String(), "source=")
}

func TestNewLoggerDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, Level(true)).Debug("visible")

	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "source=logutil_test.go:")
	assert.Equal(t, slog.LevelDebug, Level(true))
}
