package core

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger provides leveled logging for pools and the tools built on them.
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message (dropped unless debug output is enabled)
	Debug(args ...interface{})

	// Debugf logs a formatted debug message (dropped unless debug output is enabled)
	Debugf(format string, args ...interface{})
}

// LoggerConfig configures the standard logger.
type LoggerConfig struct {
	Prefix string    // Prepended to every line, e.g. "threadpool[bench] "
	Debug  bool      // Emit Debug/Debugf output
	Out    io.Writer // Info/Debug destination, stdout when nil
	Err    io.Writer // Error/Warn destination, stderr when nil
}

// defaultLogger implements Logger using Go's standard log package
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	debug       bool
}

// NewDefaultLogger creates a logger writing info to stdout and errors to stderr, debug off.
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{})
}

// NewLogger creates a standard logger from config
func NewLogger(config LoggerConfig) Logger {
	out, errOut := config.Out, config.Err
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	flags := log.LstdFlags | log.Lmicroseconds
	return &defaultLogger{
		errorLogger: log.New(errOut, "[ERROR] "+config.Prefix, flags),
		warnLogger:  log.New(errOut, "[WARN] "+config.Prefix, flags),
		infoLogger:  log.New(out, "[INFO] "+config.Prefix, flags),
		debugLogger: log.New(out, "[DEBUG] "+config.Prefix, flags),
		debug:       config.Debug,
	}
}

// Error logs an error message
func (l *defaultLogger) Error(args ...interface{}) {
	l.errorLogger.Output(3, fmt.Sprint(args...))
}

// Errorf logs a formatted error message
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.errorLogger.Output(3, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *defaultLogger) Warn(args ...interface{}) {
	l.warnLogger.Output(3, fmt.Sprint(args...))
}

// Warnf logs a formatted warning message
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.warnLogger.Output(3, fmt.Sprintf(format, args...))
}

// Info logs an informational message
func (l *defaultLogger) Info(args ...interface{}) {
	l.infoLogger.Output(3, fmt.Sprint(args...))
}

// Infof logs a formatted informational message
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.infoLogger.Output(3, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Debug(args ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Output(3, fmt.Sprint(args...))
}

func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Output(3, fmt.Sprintf(format, args...))
}

// nopLogger discards everything. Used by tests and by pools that opt out of logging.
type nopLogger struct{}

// NewNopLogger returns a Logger that drops all output
func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Error(...interface{}) {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warn(...interface{}) {}
func (nopLogger) Warnf(string, ...interface{}) {}
func (nopLogger) Info(...interface{}) {}
func (nopLogger) Infof(string, ...interface{}) {}
func (nopLogger) Debug(...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
