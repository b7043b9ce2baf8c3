package logger

// Logger is the leveled logger shared by connections, pools and the CLI.
type Logger interface {
	Log(level LogLevel, message string, args ...interface{})
	Error(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Info(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Trace(format string, args ...interface{})
	GetLevel() LogLevel
	SetLevel(level LogLevel)
	GetLastMessage() *LogMessage
	Clone() Logger
}

// Nop returns a logger that drops everything
func Nop() Logger {
	return NewPlaneLoggerTo(discard{}, LevelError, false)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
