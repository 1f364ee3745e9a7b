// Package logging builds the zap loggers used by the service and the CLI.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Config selects the log level and output format
type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// FromEnv reads LOG_LEVEL and LOG_FORMAT, defaulting to info and console
func FromEnv() Config {
	cfg := Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "console"
	}
	return cfg
}

// ZapConfig converts cfg into a zap configuration. Unknown levels fall back to
// info; any format other than json is treated as console.
func ZapConfig(cfg Config) zap.Config {
	config := zap.NewProductionConfig()

	switch strings.ToLower(cfg.Level) {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.Format == "json" {
		config.Encoding = "json"
	} else {
		config.Development = true
		config.Encoding = "console"
		config.EncoderConfig.TimeKey = ""
		config.EncoderConfig.CallerKey = ""
	}

	return config
}

// New builds a logger writing to stderr
func New(cfg Config) (*zap.Logger, error) {
	logger, err := ZapConfig(cfg).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
