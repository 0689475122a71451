package infrastructure

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ServiceName = "recruit-pipeline"

// NewLogger builds the service logger. Every entry carries the service name and the
// build version.
func NewLogger(cfg LogConfig, version string) (*zap.Logger, error) {
	return loggerConfig(cfg, version).Build()
}

func loggerConfig(cfg LogConfig, version string) zap.Config {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}
	encoding := "console"
	if cfg.JSON {
		encoding = "json"
	}

	return zap.Config{
		Encoding:          encoding,
		Level:             zap.NewAtomicLevelAt(level),
		DisableStacktrace: !cfg.Debug,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields: map[string]any{
			"service": ServiceName,
			"version": version,
		},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "msg",
			NameKey:       "component",
			LevelKey:      "level",
			EncodeLevel:   zapcore.LowercaseLevelEncoder,
			TimeKey:       "time",
			EncodeTime:    zapcore.RFC3339TimeEncoder,
			CallerKey:     "caller",
			EncodeCaller:  zapcore.ShortCallerEncoder,
			StacktraceKey: "stacktrace",
		},
	}
}
