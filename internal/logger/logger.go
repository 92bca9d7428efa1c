package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// LevelDebug is the most verbose logging level
	LevelDebug Level = iota
	// LevelInfo logs informational messages
	LevelInfo
	// LevelWarn logs warnings
	LevelWarn
	// LevelError logs errors
	LevelError
	// LevelNone disables all logging
	LevelNone
)

// String returns string representation of log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none":
		return LevelNone
	default:
		return LevelInfo
	}
}

// core is shared between a logger and the prefixed loggers derived from it,
// so a level change on the root reaches every component.
type core struct {
	mu     sync.RWMutex
	level  Level
	logger *log.Logger
	file   *os.File
}

// Logger provides leveled logging for one component
type Logger struct {
	core   *core
	prefix string
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// Init initializes the global logger with a log file. An empty path sends
// output to stderr; stdout is never used because the server child process
// speaks the channel protocol on it.
func Init(level Level, logPath string) error {
	l, err := New(level, logPath, "")
	if err != nil {
		return err
	}
	setGlobal(l)
	return nil
}

// InitWriter initializes the global logger on an arbitrary writer
func InitWriter(level Level, w io.Writer) {
	setGlobal(NewWriter(level, w, ""))
}

func setGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil && globalLogger.core != l.core {
		_ = globalLogger.Close()
	}
	globalLogger = l
}

// New creates a new Logger writing to logPath, or to stderr when logPath is empty
func New(level Level, logPath string, prefix string) (*Logger, error) {
	if level == LevelNone {
		return NewWriter(level, io.Discard, prefix), nil
	}
	if logPath == "" {
		return NewWriter(level, os.Stderr, prefix), nil
	}

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriter(level, file, prefix)
	l.core.file = file
	return l, nil
}

// NewWriter creates a Logger on top of w
func NewWriter(level Level, w io.Writer, prefix string) *Logger {
	return &Logger{
		core: &core{
			level:  level,
			logger: log.New(w, "", 0),
		},
		prefix: prefix,
	}
}

// Global returns the global logger instance
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewWriter(LevelNone, io.Discard, "")
	}
	return globalLogger
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + ":" + prefix
	}
	return &Logger{core: l.core, prefix: newPrefix}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return l.core.level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()

	if l.core.level == LevelNone || level < l.core.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	prefix := l.prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}

	l.core.logger.Printf("%s [%s] [pid %d] %s%s", timestamp, level.String(), os.Getpid(), prefix, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Close closes the logger's underlying file
func (l *Logger) Close() error {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if l.core.file != nil {
		err := l.core.file.Close()
		l.core.file = nil
		l.core.logger.SetOutput(io.Discard)
		return err
	}
	return nil
}

// Global logging functions for convenience

// Debug logs a debug message using the global logger
func Debug(format string, args ...interface{}) {
	Global().Debug(format, args...)
}

// Info logs an informational message using the global logger
func Info(format string, args ...interface{}) {
	Global().Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(format string, args ...interface{}) {
	Global().Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...interface{}) {
	Global().Error(format, args...)
}

// Component returns a prefixed child of the global logger
func Component(name string) *Logger {
	return Global().WithPrefix(name)
}
