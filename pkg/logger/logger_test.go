package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"immersion/backend/config"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(&config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger(&config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestForCommand(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ForCommand(zap.New(core), "annual_purge").Info("完成")

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "cron", e.LoggerName)
	assert.Equal(t, "annual_purge", e.ContextMap()["command"])
}
