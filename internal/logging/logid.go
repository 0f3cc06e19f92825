package logging

import (
	"context"

	"hitlbot/internal/observability"

	"github.com/google/uuid"
)

type contextCapable interface {
	WithContext(context.Context) Logger
}

// NewLogID returns a fresh identifier for one inbound surface event.
func NewLogID() string {
	return "log-" + uuid.NewString()
}

// FromContext returns a logger tagged with the log and run ids found in ctx.
// Structured loggers get them as fields; plain loggers get a message prefix.
func FromContext(ctx context.Context, logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if capable, ok := logger.(contextCapable); ok {
		return capable.WithContext(ctx)
	}
	logID := observability.LogIDFromContext(ctx)
	runID := observability.RunIDFromContext(ctx)
	if logID == "" && runID == "" {
		return logger
	}
	return &logIDLogger{logger: logger, logID: logID, runID: runID}
}

type logIDLogger struct {
	logger Logger
	logID  string
	runID  string
}

func (l *logIDLogger) Debug(format string, args ...any) {
	l.logger.Debug(l.prefix(format), args...)
}

func (l *logIDLogger) Info(format string, args ...any) {
	l.logger.Info(l.prefix(format), args...)
}

func (l *logIDLogger) Warn(format string, args ...any) {
	l.logger.Warn(l.prefix(format), args...)
}

func (l *logIDLogger) Error(format string, args ...any) {
	l.logger.Error(l.prefix(format), args...)
}

func (l *logIDLogger) prefix(format string) string {
	if l.runID != "" {
		format = "runid=" + l.runID + " " + format
	}
	if l.logID != "" {
		format = "logid=" + l.logID + " " + format
	}
	return format
}
