package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core))

	logger.Verbose("attempt %d", 0)
	logger.Info("retrying with %s", "LTX")
	logger.Error("close failed: %v", "boom")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "attempt 0", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "retrying with LTX", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "close failed: boom", entries[2].Message)
}

func TestNewZapLogger(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatConsole} {
		t.Run(format, func(t *testing.T) {
			logger, err := NewZapLogger(format, true)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}

	_, err := NewZapLogger("xml", false)
	assert.ErrorContains(t, err, "unknown log format")
}
