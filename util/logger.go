// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  When built with NewJSONLogger the same calls are
// routed to a zap JSON core instead.
type Logger struct {
	level      LogLevel
	output     io.Writer
	mu         *sync.Mutex
	timestamps bool   // if true, prepend a wall-clock timestamp
	prefix     string // "key=value " pairs added by With
	zl         *zap.SugaredLogger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		mu:         &sync.Mutex{},
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
}

// NewJSONLogger returns a Logger that emits one JSON object per line to w.
// Verbosity filtering is identical to NewLogger.
func NewJSONLogger(verbosity int, w io.Writer) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapcore.DebugLevel)

	l := NewLogger(verbosity)
	l.output = w
	l.zl = zap.New(core).Sugar()
	return l
}

// Discard returns a quiet logger that drops everything, including errors.
func Discard() *Logger {
	l := NewLogger(int(LogQuiet))
	l.output = io.Discard
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.output = w }

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that tags every message with key=value.
// The child shares the parent's output and lock.
func (l *Logger) With(key string, value interface{}) *Logger {
	child := *l
	child.prefix = fmt.Sprintf("%s%s=%v ", l.prefix, key, value)
	if l.zl != nil {
		child.zl = l.zl.With(key, value)
	}
	return &child
}

// Sync flushes any buffered JSON output.
func (l *Logger) Sync() {
	if l.zl != nil {
		_ = l.zl.Sync()
	}
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if l.zl != nil {
		switch level {
		case "ERR":
			l.zl.Error(msg)
		case "WRN":
			l.zl.Warn(msg)
		case "INF":
			l.zl.Info(msg)
		default:
			l.zl.Debug(msg)
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.output, "%s [%s] %s%s\n", ts, level, l.prefix, msg)
	} else {
		fmt.Fprintf(l.output, "[%s] %s%s\n", level, l.prefix, msg)
	}
}
