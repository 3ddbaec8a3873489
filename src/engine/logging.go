package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LogLevelDebug logs every cache probe
	LogLevelDebug LogLevel = iota
	// LogLevelInfo logs compilations and cache resets
	LogLevelInfo
	// LogLevelWarn logs failed compilations
	LogLevelWarn
	// LogLevelError logs only error conditions
	LogLevelError
	// LogLevelOff disables all logging
	LogLevelOff
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "OFF", "NONE":
		return LogLevelOff
	default:
		return LogLevelInfo
	}
}

// LogEntry is one structured log record.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger defines the interface for pluggable logging in the engine.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})
	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a warning message with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})
	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
	// IsDebugEnabled returns true if debug logging is enabled
	IsDebugEnabled() bool
	// IsInfoEnabled returns true if info logging is enabled
	IsInfoEnabled() bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Logger is the pluggable logger implementation
	Logger Logger
	// Level sets the minimum log level to output. It is applied to
	// loggers that implement LevelSetter when the engine is created.
	Level LogLevel
}

// LevelSetter is implemented by loggers whose threshold can change.
type LevelSetter interface {
	SetLevel(level LogLevel)
}

// DefaultLoggingConfig returns a logging configuration with no-op logger (silent by default)
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Logger: &NoOpLogger{},
		Level:  LogLevelOff,
	}
}

// NewConsoleLoggingConfig creates a text logging configuration writing to stdout/stderr
func NewConsoleLoggingConfig(level LogLevel) *LoggingConfig {
	return &LoggingConfig{
		Logger: NewConsoleLogger(level),
		Level:  level,
	}
}

// NewStructuredLoggingConfig creates a JSON logging configuration
func NewStructuredLoggingConfig(level LogLevel, output io.Writer) *LoggingConfig {
	return &LoggingConfig{
		Logger: &JSONLogger{Level: level, Output: output},
		Level:  level,
	}
}

// NoOpLogger is a logger that does nothing (default behavior)
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) IsDebugEnabled() bool                           { return false }
func (l *NoOpLogger) IsInfoEnabled() bool                            { return false }

// ConsoleLogger logs to stdout/stderr with configurable level and formatting
type ConsoleLogger struct {
	level      LogLevel
	debugLog   *log.Logger
	infoLog    *log.Logger
	warnLog    *log.Logger
	errorLog   *log.Logger
	mu         sync.RWMutex
	timeFormat string
}

// NewConsoleLogger creates a new console logger with the specified level
func NewConsoleLogger(level LogLevel) *ConsoleLogger {
	return NewConsoleLoggerWithOutput(level, os.Stdout, os.Stderr)
}

// NewConsoleLoggerWithOutput creates a console logger with custom output writers
func NewConsoleLoggerWithOutput(level LogLevel, stdout, stderr io.Writer) *ConsoleLogger {
	return &ConsoleLogger{
		level:      level,
		debugLog:   log.New(stdout, "", 0),
		infoLog:    log.New(stdout, "", 0),
		warnLog:    log.New(stderr, "", 0),
		errorLog:   log.New(stderr, "", 0),
		timeFormat: "2006-01-02 15:04:05.000",
	}
}

// SetLevel updates the log level
func (c *ConsoleLogger) SetLevel(level LogLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

// SetTimeFormat sets the time format for log messages
func (c *ConsoleLogger) SetTimeFormat(format string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeFormat = format
}

func (c *ConsoleLogger) enabled(level LogLevel) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level <= level
}

func (c *ConsoleLogger) formatMessage(level LogLevel, msg string, keysAndValues ...interface{}) string {
	c.mu.RLock()
	timeFormat := c.timeFormat
	c.mu.RUnlock()

	formatted := fmt.Sprintf("[%s] %s [relay] %s", time.Now().Format(timeFormat), level, msg)
	if kv := formatKeyValues(keysAndValues); kv != "" {
		formatted += " | " + kv
	}
	return formatted
}

func (c *ConsoleLogger) Debug(msg string, keysAndValues ...interface{}) {
	if c.enabled(LogLevelDebug) {
		c.debugLog.Println(c.formatMessage(LogLevelDebug, msg, keysAndValues...))
	}
}

func (c *ConsoleLogger) Info(msg string, keysAndValues ...interface{}) {
	if c.enabled(LogLevelInfo) {
		c.infoLog.Println(c.formatMessage(LogLevelInfo, msg, keysAndValues...))
	}
}

func (c *ConsoleLogger) Warn(msg string, keysAndValues ...interface{}) {
	if c.enabled(LogLevelWarn) {
		c.warnLog.Println(c.formatMessage(LogLevelWarn, msg, keysAndValues...))
	}
}

func (c *ConsoleLogger) Error(msg string, keysAndValues ...interface{}) {
	if c.enabled(LogLevelError) {
		c.errorLog.Println(c.formatMessage(LogLevelError, msg, keysAndValues...))
	}
}

func (c *ConsoleLogger) IsDebugEnabled() bool { return c.enabled(LogLevelDebug) }

func (c *ConsoleLogger) IsInfoEnabled() bool { return c.enabled(LogLevelInfo) }

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	Level  LogLevel
	Output io.Writer
	mu     sync.Mutex
}

// SetLevel updates the log level
func (l *JSONLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Level = level
}

func (l *JSONLogger) enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.Level
}

func (l *JSONLogger) log(level LogLevel, msg string, keysAndValues ...interface{}) {
	if !l.enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
	}
	if len(keysAndValues) > 0 {
		entry.Fields = parseKeyValues(keysAndValues)
	}
	l.LogStructured(entry)
}

// LogStructured writes entry as a single line.
func (l *JSONLogger) LogStructured(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":"ERROR","message":"failed to marshal log entry: %v"}`, err))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Output.Write(append(data, '\n'))
}

func (l *JSONLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

func (l *JSONLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

func (l *JSONLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

func (l *JSONLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelError, msg, keysAndValues...)
}

func (l *JSONLogger) IsDebugEnabled() bool { return l.enabled(LogLevelDebug) }

func (l *JSONLogger) IsInfoEnabled() bool { return l.enabled(LogLevelInfo) }

func formatKeyValues(keysAndValues []interface{}) string {
	var parts []string
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return strings.Join(parts, " ")
}

func parseKeyValues(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		value := keysAndValues[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fields[key] = value
	}
	return fields
}
