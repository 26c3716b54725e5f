package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// Logger is the process wide logger. It discards everything until InitLogger is called.
var Logger = zap.NewNop()

// InitLogger replaces Logger with a production logger at the given level
// ("debug", "info", "warn", "error"). An empty level means info.
func InitLogger(level string) error {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return err
		}
	}

	config := zap.NewProductionConfig()
	config.Level = lvl
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format(time.RFC3339))
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	logger, err := config.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// Sync flushes buffered entries, ignoring the error stderr returns on some terminals.
func Sync() {
	_ = Logger.Sync()
}
