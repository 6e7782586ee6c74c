// Package logging builds the structured logger shared by every component.
package logging

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how logs are written. Fields mirror the
// configuration surface's logDir / disableLogging / logToStderr options.
type Config struct {
	Level         string // debug, info, warn, error
	Format        string // json, console
	LogDir        string
	DisableLogging bool
	LogToStderr   bool
}

// New builds a zap.Logger from Config.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.DisableLogging {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	format := cfg.Format
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		format = "json"
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := []string{"stdout"}
	if cfg.LogToStderr {
		outputs = []string{"stderr"}
	}
	if cfg.LogDir != "" {
		outputs = append(outputs, filepath.Join(cfg.LogDir, "toolserver.log"))
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	return zcfg.Build()
}
