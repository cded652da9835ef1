package system

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggingJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, SetupLoggingTo(&buf, "warn", "json"))

	slog.Info("hidden")
	slog.Warn("shown", "seq", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, float64(3), line["seq"])
}

func TestSetupLoggingText(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, SetupLoggingTo(&buf, "DEBUG", "text"))
	slog.Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
}

func TestSetupLoggingRejectsBadInput(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	assert.Error(t, SetupLoggingTo(&bytes.Buffer{}, "loud", "text"))
	assert.Error(t, SetupLoggingTo(&bytes.Buffer{}, "info", "xml"))
}
