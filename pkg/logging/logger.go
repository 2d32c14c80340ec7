// Package logging provides the levelled structured logger used across mimir-lvq.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents different logging levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of Level
func (l Level) String() string {
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

// ParseLevel converts a level name to a Level, defaulting to INFO
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Entry represents a structured log entry
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Field is a single key/value attached to a log entry
type Field struct {
	Key   string
	Value any
}

// String creates a string field
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Float creates a float field
func Float(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Any creates a field holding an arbitrary value
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

const (
	componentKey = "\x00component"
	errorKey     = "\x00error"
)

// Component tags the entry with the emitting component
func Component(name string) Field { return Field{Key: componentKey, Value: name} }

// Error attaches an error to the entry
func Error(err error) Field { return Field{Key: errorKey, Value: err} }

// sink is shared by a logger and all loggers derived from it
type sink struct {
	mu     sync.RWMutex
	level  Level
	format string // "json" or "text"
	output io.Writer
}

// Logger provides structured logging capabilities
type Logger struct {
	sink   *sink
	fields []Field
}

// New creates a text logger writing INFO and above to stdout
func New() *Logger {
	return &Logger{sink: &sink{level: INFO, format: "text", output: os.Stdout}}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetFormat sets the logging format ("json" or "text")
func (l *Logger) SetFormat(format string) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.format = strings.ToLower(format)
}

// SetOutput sets the logging output destination
func (l *Logger) SetOutput(output io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = output
}

// Enabled reports whether entries at level would be written
func (l *Logger) Enabled(level Level) bool {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return level >= l.sink.level
}

// With returns a logger that adds fields to every entry
func (l *Logger) With(fields ...Field) *Logger {
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)
	return &Logger{sink: l.sink, fields: all}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields) }

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) { l.log(INFO, msg, fields) }

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) { l.log(WARN, msg, fields) }

// Error logs an error message
func (l *Logger) Error(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Error(err))
	}
	l.log(ERROR, msg, fields)
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}

	entry := &Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   msg,
	}
	for _, group := range [][]Field{l.fields, fields} {
		for _, f := range group {
			entry.apply(f)
		}
	}

	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	var line string
	if l.sink.format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			line = fmt.Sprintf("Failed to marshal log entry: %v", err)
		} else {
			line = string(data)
		}
	} else {
		line = entry.text()
	}
	fmt.Fprintln(l.sink.output, line)
}

func (e *Entry) apply(f Field) {
	switch f.Key {
	case componentKey:
		e.Component, _ = f.Value.(string)
	case errorKey:
		if err, ok := f.Value.(error); ok && err != nil {
			e.Error = err.Error()
		}
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[f.Key] = f.Value
	}
}

// text formats the entry as a single line, fields sorted by key
func (e *Entry) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", e.Timestamp, e.Level, e.Message)
	if e.Component != "" {
		fmt.Fprintf(&b, " component=%s", e.Component)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}

	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	return b.String()
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = New()
	})
	return globalLogger
}

// Init configures the global logger
func Init(level, format string) *Logger {
	logger := GetLogger()
	logger.SetLevel(ParseLevel(level))
	if format != "" {
		logger.SetFormat(format)
	}
	return logger
}
