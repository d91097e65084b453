package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerRoutesPackageHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	Warn("asset missing", String("asset", "audio/a.mp3"), Int64("trackId", 7))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "asset missing", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(7), entries[0].ContextMap()["trackId"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel(DebugLevel))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(ErrorLevel))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
