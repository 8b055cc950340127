// Package logger provides structured logging for the application
// built on top of zap.
package logger

import (
	"go.uber.org/zap"
)

// Logger wraps a zap.Logger instance.
type Logger struct {
	// Log is the underlying zap logger. It is a no-op until Init is called.
	Log *zap.Logger
}

// New returns a Logger with a no-op zap instance so it is safe to use
// before Init.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init builds the production zap logger at the given level ("Debug",
// "Info", "Warn", "Error"). It replaces the no-op instance.
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	l.Log = logger
	return nil
}
