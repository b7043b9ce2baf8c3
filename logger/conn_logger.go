package logger

import (
	"fmt"
)

// PoolID is the ConnLogger id used by pool-level messages
const PoolID = -1

// ConnLogger prefixes every message with the id of the connection it belongs to
type ConnLogger struct {
	*PlaneLogger
	connID int
}

// NewConnLogger wraps base so that every line carries the connection id.
// base must have been created by this package.
func NewConnLogger(base Logger, connID int) Logger {
	var plane *PlaneLogger
	switch b := base.(type) {
	case *PlaneLogger:
		plane = b.Clone().(*PlaneLogger)
	case *ConnLogger:
		plane = b.PlaneLogger.Clone().(*PlaneLogger)
	default:
		plane = NewPlaneLogger(base.GetLevel(), false).(*PlaneLogger)
	}

	return &ConnLogger{PlaneLogger: plane, connID: connID}
}

// ConnID returns the id of the connection the logger belongs to
func (l *ConnLogger) ConnID() int {
	return l.connID
}

func (l *ConnLogger) Log(level LogLevel, message string, args ...interface{}) {
	if l.GetLevel() < level {
		return
	}

	msg := message
	if len(args) > 0 {
		msg = fmt.Sprintf(message, args...)
	}
	if l.connID == PoolID {
		msg = "pool: " + msg
	} else {
		msg = fmt.Sprintf("conn # %03d: %s", l.connID, msg)
	}
	l.PlaneLogger.print(level, msg)
}

// Error logs an error message
func (l *ConnLogger) Error(format string, args ...interface{}) {
	l.Log(LevelError, format, args...)
}

// Warn logs a warning message
func (l *ConnLogger) Warn(format string, args ...interface{}) {
	l.Log(LevelWarn, format, args...)
}

// Info logs an informational message
func (l *ConnLogger) Info(format string, args ...interface{}) {
	l.Log(LevelInfo, format, args...)
}

// Debug logs a debug message
func (l *ConnLogger) Debug(format string, args ...interface{}) {
	l.Log(LevelDebug, format, args...)
}

// Trace logs a trace message
func (l *ConnLogger) Trace(format string, args ...interface{}) {
	l.Log(LevelTrace, format, args...)
}

func (l *ConnLogger) Clone() Logger {
	return NewConnLogger(l.PlaneLogger, l.connID)
}
