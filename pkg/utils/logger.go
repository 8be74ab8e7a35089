package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger named "studydesk". When debug is true, uses
// development config (human-readable, debug level); otherwise uses production
// config (JSON, info level, ISO8601 timestamps).
func NewLogger(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("studydesk"), nil
}

// NewCLILogger returns a logger for one-shot commands: warnings and above go to
// stderr unless debug is set.
func NewCLILogger(debug bool) (*zap.Logger, error) {
	if debug {
		return NewLogger(true)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("studydesk"), nil
}
