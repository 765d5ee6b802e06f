package ports

// Logger defines the interface for logging operations
type Logger interface {
	// Log logs a message with the specified level
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError logs an error
	LogError(err error, message string, fields map[string]interface{})

	// SetLogLevel sets the logging level
	SetLogLevel(level LogLevel)

	// GetLogLevel returns the current logging level
	GetLogLevel() LogLevel
}

// LogLevel defines the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Log(LogLevel, string, map[string]interface{}) {}
func (NopLogger) LogError(error, string, map[string]interface{}) {}
func (NopLogger) SetLogLevel(LogLevel) {}
func (NopLogger) GetLogLevel() LogLevel { return LogLevelError }
