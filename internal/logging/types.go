package logging

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
	// FATAL level for fatal messages
	FATAL
)

// zapLevel maps a LogLevel onto the zap level used for encoding.
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// LogField represents a structured logging field
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger is a named, immutable logger. Derived loggers (WithField, WithContext)
// never mutate their parent.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// packageLogLevels stores per-package log level overrides.
// Keys are exact names ("evaluator") or prefix patterns ("agent.*").
var (
	packageLogLevels = make(map[string]LogLevel)
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels replaces the per-package overrides.
// Input format: map["knowledge"]="debug" or map["agent.*"]="warn".
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}

	parsed := make(map[string]LogLevel, len(levels))
	for pkg, levelStr := range levels {
		level, err := ParseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		parsed[pkg] = level
	}

	packageLogMutex.Lock()
	packageLogLevels = parsed
	packageLogMutex.Unlock()
	return nil
}

// GetPackageLogLevel returns the effective override for a logger name: exact
// match first, then the most specific wildcard, or -1 when nothing matches.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, exists := packageLogLevels[packageName]; exists {
		return level
	}

	var patterns []string
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		return LogLevel(-1)
	}

	// longest pattern is the most specific
	sort.Slice(patterns, func(i, j int) bool { return len(patterns[i]) > len(patterns[j]) })
	return packageLogLevels[patterns[0]]
}

// matchesPattern reports whether packageName matches pattern.
//
//	matchesPattern("agent.runner", "agent.runner") -> true
//	matchesPattern("agent.runner", "agent.*")      -> true
//	matchesPattern("knowledge", "agent.*")         -> false
func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}

// ParseLevel converts a level name (case-insensitive) to a LogLevel.
func ParseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return -1, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
	}
}

// cloneFields copies src; the result is never nil.
func cloneFields(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return make(map[string]interface{})
	}
	return maps.Clone(src)
}
