package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestLoggersRouteBySeverity(t *testing.T) {
	var out, errOut bytes.Buffer
	l, err := newLoggers("info", &out, &errOut)
	require.NoError(t, err)

	l.InfoLogger.Info("ad created", "ad_id", 7)
	l.ErrorLogger.Error("ad failed")
	l.DebugLogger.Debug("hidden")

	assert.Contains(t, out.String(), `"ad_id":7`)
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, errOut.String(), "ad failed")
}
