// Package logging builds the zap logger shared by the CLI and its packages.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoder
type Config struct {
	// Level is debug, info, warn or error
	Level string
	// Development switches to the console encoder with caller info
	Development bool
	// Output overrides the destination (stderr by default)
	Output io.Writer
}

// New builds a logger from cfg
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if cfg.Output != nil {
		encoderCfg := zap.NewProductionEncoderConfig()
		if cfg.Development {
			encoderCfg = zap.NewDevelopmentEncoderConfig()
		}
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(cfg.Output),
			level,
		)
		return zap.New(core), nil
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Must builds a logger from cfg, falling back to a no-op logger
func Must(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
