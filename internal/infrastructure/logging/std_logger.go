package logging

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"kilometers.ai/authclient/internal/application/ports"
)

// StdLogger implements ports.Logger on top of the standard library logger
type StdLogger struct {
	logger *log.Logger

	mu       sync.RWMutex
	logLevel ports.LogLevel
}

// NewStdLogger creates a logger writing to out with the "[kmauth] " prefix
func NewStdLogger(out io.Writer, level ports.LogLevel) *StdLogger {
	return &StdLogger{
		logger:   log.New(out, "[kmauth] ", log.LstdFlags),
		logLevel: level,
	}
}

// Log logs a message when level is at or above the current level
func (l *StdLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	if len(fields) > 0 {
		l.logger.Printf("%s: %s (%s)", level, message, formatFields(fields))
	} else {
		l.logger.Printf("%s: %s", level, message)
	}
}

// LogError logs an error at error level
func (l *StdLogger) LogError(err error, message string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	l.Log(ports.LogLevelError, message, merged)
}

// SetLogLevel sets the logging level
func (l *StdLogger) SetLogLevel(level ports.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logLevel = level
}

// GetLogLevel returns the current logging level
func (l *StdLogger) GetLogLevel() ports.LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logLevel
}

func (l *StdLogger) shouldLog(level ports.LogLevel) bool {
	return level >= l.GetLogLevel()
}

// formatFields renders fields as sorted key=value pairs so log lines are stable
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

var _ ports.Logger = (*StdLogger)(nil)
