// Package log provides the leveled logger used across docintel. The default
// backend is kataras/golog; components accept the Logger interface so tests
// can silence or capture output.
package log

import (
	"github.com/kataras/golog"
)

// Logger is the printf-style leveled logging interface.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// GologLogger implements Logger on top of kataras/golog.
type GologLogger struct {
	logger *golog.Logger
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog logger.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	return &GologLogger{logger: logger}
}

// Debug logs at debug level.
func (l *GologLogger) Debug(format string, v ...any) {
	l.logger.Debugf(format, v...)
}

// Info logs at info level.
func (l *GologLogger) Info(format string, v ...any) {
	l.logger.Infof(format, v...)
}

// Warn logs at warn level.
func (l *GologLogger) Warn(format string, v ...any) {
	l.logger.Warnf(format, v...)
}

// Error logs at error level.
func (l *GologLogger) Error(format string, v ...any) {
	l.logger.Errorf(format, v...)
}

// SetLevel changes the backend level ("debug", "info", "warn", "error",
// "disable").
func (l *GologLogger) SetLevel(level string) {
	l.logger.SetLevel(level)
}

// NoOpLogger discards everything. Useful in tests.
type NoOpLogger struct{}

// Debug does nothing.
func (NoOpLogger) Debug(string, ...any) {}

// Info does nothing.
func (NoOpLogger) Info(string, ...any) {}

// Warn does nothing.
func (NoOpLogger) Warn(string, ...any) {}

// Error does nothing.
func (NoOpLogger) Error(string, ...any) {}

var defaultLogger Logger = NewGologLogger(golog.Default)

// SetDefault replaces the package-level logger.
func SetDefault(logger Logger) {
	defaultLogger = logger
}

// Default returns the package-level logger.
func Default() Logger {
	return defaultLogger
}

// Debug logs a debug message with the package-level logger.
func Debug(format string, v ...any) { defaultLogger.Debug(format, v...) }

// Info logs an info message with the package-level logger.
func Info(format string, v ...any) { defaultLogger.Info(format, v...) }

// Warn logs a warning with the package-level logger.
func Warn(format string, v ...any) { defaultLogger.Warn(format, v...) }

// Error logs an error with the package-level logger.
func Error(format string, v ...any) { defaultLogger.Error(format, v...) }
