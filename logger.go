package msgdispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Logger defines the logging interface used across the library.
// Implement it to plug in your logging system, or wrap a *slog.Logger with
// NewSlogLogger.
type Logger interface {
	// Debugf logs debug-level messages with printf-style formatting.
	Debugf(format string, args ...interface{})

	// Infof logs info-level messages with printf-style formatting.
	Infof(format string, args ...interface{})

	// Warnf logs warning-level messages with printf-style formatting.
	Warnf(format string, args ...interface{})

	// Errorf logs error-level messages with printf-style formatting.
	Errorf(format string, args ...interface{})

	// Info logs info-level messages without formatting.
	Info(message string)
}

// NoopLogger discards everything. Useful in tests.
type NoopLogger struct{}

// Debugf implements Logger.Debugf as a no-op.
func (l *NoopLogger) Debugf(_ string, _ ...interface{}) {}

// Infof implements Logger.Infof as a no-op.
func (l *NoopLogger) Infof(_ string, _ ...interface{}) {}

// Warnf implements Logger.Warnf as a no-op.
func (l *NoopLogger) Warnf(_ string, _ ...interface{}) {}

// Errorf implements Logger.Errorf as a no-op.
func (l *NoopLogger) Errorf(_ string, _ ...interface{}) {}

// Info implements Logger.Info as a no-op.
func (l *NoopLogger) Info(_ string) {}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

// With returns a logger that adds attrs to every record.
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

// Slog returns the wrapped logger.
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

func (l *SlogLogger) Debugf(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *SlogLogger) Infof(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *SlogLogger) Warnf(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *SlogLogger) Errorf(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

func (l *SlogLogger) Info(message string) {
	l.logger.Info(message)
}

func (l *SlogLogger) log(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

// prefixLogger prepends a fixed context string to every message.
type prefixLogger struct {
	next      Logger
	prefix    string
	fmtPrefix string
}

// withPrefix returns a Logger that prefixes every record with prefix.
func withPrefix(l Logger, prefix string) Logger {
	if prefix == "" {
		return l
	}
	return &prefixLogger{
		next:      l,
		prefix:    prefix + " ",
		fmtPrefix: strings.ReplaceAll(prefix, "%", "%%") + " ",
	}
}

func (l *prefixLogger) Debugf(format string, args ...interface{}) {
	l.next.Debugf(l.fmtPrefix+format, args...)
}

func (l *prefixLogger) Infof(format string, args ...interface{}) {
	l.next.Infof(l.fmtPrefix+format, args...)
}

func (l *prefixLogger) Warnf(format string, args ...interface{}) {
	l.next.Warnf(l.fmtPrefix+format, args...)
}

func (l *prefixLogger) Errorf(format string, args ...interface{}) {
	l.next.Errorf(l.fmtPrefix+format, args...)
}

func (l *prefixLogger) Info(message string) {
	l.next.Info(l.prefix + message)
}
