// Package log provides the process-wide structured logger.
package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
)

// GetLogger returns the process logger. Before Init it returns a console
// logger at info level, so library code can log unconditionally.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		cfg := &LoggerConfig{}
		cfg.applyDefaults()
		logger, _ = newLogrusAdapter(cfg)
	}
	return logger
}

// Init configures the process logger from cfg. A logger created by an
// earlier Init or GetLogger is reconfigured in place, so loggers already
// derived from it pick up the new level, pattern and appenders.
func Init(cfg *LoggerConfig) error {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}
	cfg.applyDefaults()

	mu.Lock()
	defer mu.Unlock()

	if root, ok := logger.(*logrusAdapter); ok && root.out != nil {
		return root.configure(cfg)
	}

	l, err := newLogrusAdapter(cfg)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// SetLogger replaces the process logger. Intended for tests.
func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}
