package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sinkMu sync.RWMutex
	sink   = newCore(os.Stderr)
)

// SetOutput redirects all loggers to w. Intended for tests and for commands
// that need to capture logs.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = newCore(w)
}

func newCore(w io.Writer) zapcore.Core {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		EncodeTime:       encodeTimestamp,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	// Level filtering happens in Logger.shouldLog, so the core accepts everything.
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel)
}

// writeLog encodes one entry. Field keys are sorted so output is stable.
func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	sinkMu.RLock()
	core := sink
	sinkMu.RUnlock()

	entry := zapcore.Entry{
		LoggerName: l.name,
		Time:       time.Now(),
		Level:      level.zapLevel(),
		Message:    msg,
	}

	ce := core.Check(entry, nil)
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zapFields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zapFields = append(zapFields, zap.Any(k, fields[k]))
	}
	ce.Write(zapFields...)
}

// logf formats msg and writes it with the logger's base fields.
func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	l.writeLog(level, formatted, l.baseFields())
}

func encodeTimestamp(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(timestamp(t))
}

// GetTimestamp returns the current RFC3339 timestamp, or LOG_TIMESTAMP when set.
func GetTimestamp() string {
	return timestamp(time.Now())
}

func timestamp(t time.Time) string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return t.Format(time.RFC3339)
}
