// Leveled logging for the keyplus Go migration
//
// Provides log levels, structured key-value fields and per-component
// prefixed loggers. Firmware-core packages stay log-free; the host tools
// and servers log through this package.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the MIT license.

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// Logger writes leveled, optionally field-annotated messages
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      LogLevel
	timeFormat string
	fields     Fields
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process default logger (stderr, INFO)
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = New(os.Stderr, INFO)
	})
	return defaultLogger
}

// New creates a logger writing to w at the given level
func New(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		writer:     w,
		level:      level,
		timeFormat: "2006-01-02 15:04:05.000",
	}
}

// SetLevel changes the minimum level the logger emits
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// WithPrefix returns a logger that tags messages with a component prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	nl := l.clone()
	nl.prefix = prefix
	return nl
}

// WithFields returns a logger with persistent fields attached
func (l *Logger) WithFields(fields Fields) *Logger {
	nl := l.clone()
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	nl.fields = merged
	return nl
}

func (l *Logger) clone() *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		prefix:     l.prefix,
		writer:     l.writer,
		level:      l.level,
		timeFormat: l.timeFormat,
		fields:     l.fields,
	}
}

// Debug logs at DEBUG level
func (l *Logger) Debug(msg string, fields ...Fields) { l.log(DEBUG, msg, fields...) }

// Info logs at INFO level
func (l *Logger) Info(msg string, fields ...Fields) { l.log(INFO, msg, fields...) }

// Warn logs at WARN level
func (l *Logger) Warn(msg string, fields ...Fields) { l.log(WARN, msg, fields...) }

// Error logs at ERROR level
func (l *Logger) Error(msg string, fields ...Fields) { l.log(ERROR, msg, fields...) }

// Debugf logs a formatted message at DEBUG level
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at INFO level
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...))
}

func (l *Logger) log(level LogLevel, msg string, extra ...Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.writer == nil {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("]")
	if l.prefix != "" {
		b.WriteString(" ")
		b.WriteString(l.prefix)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(msg)

	merged := make(Fields, len(l.fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range extra {
		for k, v := range f {
			merged[k] = v
		}
	}
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, merged[k])
		}
	}
	b.WriteString("\n")

	io.WriteString(l.writer, b.String())
}
