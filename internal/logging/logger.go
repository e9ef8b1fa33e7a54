// Package logging provides named structured loggers for pfarch.
//
// Initialize once at startup, then obtain a logger per component:
//
//	logging.Initialize("info", map[string]string{"knowledge": "debug"})
//	logger := logging.GetLogger("evaluator")
//	logger.InfoWithFields("evaluation complete",
//	    logging.Field("site_id", siteID),
//	    logging.Field("verdict", verdict),
//	)
//
// Loggers are immutable: WithField, WithFields and WithContext return new
// loggers. A logger built WithContext includes the trace_id and span_id of the
// active OpenTelemetry span.
//
// Per-package levels accept exact names ("knowledge") and wildcard prefixes
// ("agent.*"); the most specific match wins, otherwise the default level applies.
//
// Output is encoded by zap's console encoder and written to stderr so that
// stdout stays free for reports and the MCP stdio transport. Set LOG_TIMESTAMP
// to pin timestamps in tests.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc is called by Fatal. Overridden in tests.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// Unknown level names fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  "pfarch",
	}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}

	return nil
}

// GetLogger returns a logger with the specified name
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// Name returns the logger name.
func (l *Logger) Name() string {
	return l.name
}

// shouldLog applies the per-package override first, then the logger level.
func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// Fatal logs a fatal message and exits the program with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs an error message with an error object
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(ERROR, msg+" - %v", args...)
	}
}

// WithName returns a new logger with a custom name
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		level:  l.level,
		name:   name,
		fields: make(map[string]interface{}),
		ctx:    l.ctx,
	}
}

// WithField adds a structured field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newLogger := &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
	newLogger.fields[key] = value
	return newLogger
}

// WithFields adds multiple structured fields to the logger
func (l *Logger) WithFields(fields ...LogField) *Logger {
	newLogger := &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
	for _, f := range fields {
		newLogger.fields[f.Key] = f.Value
	}
	return newLogger
}

// WithContext returns a logger that tags every entry with the trace and span
// of the span active in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    ctx,
	}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(DEBUG, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(INFO, msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(WARN, msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, fields...)
	}
}

// logWithFields merges context, persistent and call fields (last wins).
func (l *Logger) logWithFields(level LogLevel, msg string, fields ...LogField) {
	merged := l.baseFields()
	if len(fields) > 0 && merged == nil {
		merged = make(map[string]interface{}, len(fields))
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	l.writeLog(level, msg, merged)
}

// baseFields returns context fields overlaid by the logger's persistent fields.
func (l *Logger) baseFields() map[string]interface{} {
	contextFields := extractContextFields(l.ctx)
	if contextFields == nil && len(l.fields) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(contextFields)+len(l.fields))
	for k, v := range contextFields {
		merged[k] = v
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	return merged
}
