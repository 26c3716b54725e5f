package log

import (
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
)

func TestDefaultLoggerIsUsable(t *testing.T) {
	assert.NotNil(t, Logger)
	Logger.Info("discarded", zap.Int("fd", 3))
}

func TestInitLogger(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	assert.Nil(t, InitLogger("warn"))
	assert.False(t, Logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Logger.Core().Enabled(zapcore.WarnLevel))

	assert.Nil(t, InitLogger(""))
	assert.True(t, Logger.Core().Enabled(zapcore.InfoLevel))
}

func TestInitLoggerBadLevel(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	assert.NotNil(t, InitLogger("loud"))
	assert.Equal(t, old, Logger)
}
