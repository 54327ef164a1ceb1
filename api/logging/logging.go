package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console logger in a human readable format at the given
// level ("debug", "info", "warn", "error").
func New(level string) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.DisableStacktrace = lvl > zap.DebugLevel
	return cfg.Build()
}

// Must is New for program entry points; it falls back to a no-op logger.
func Must(level string) *zap.Logger {
	log, err := New(level)
	if err != nil {
		return zap.NewNop()
	}
	return log
}
