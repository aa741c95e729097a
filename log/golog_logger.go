package log

import (
	"github.com/kataras/golog"
)

var gologLevels = map[LogLevel]golog.Level{
	LogLevelDebug: golog.DebugLevel,
	LogLevelInfo:  golog.InfoLevel,
	LogLevelWarn:  golog.WarnLevel,
	LogLevelError: golog.ErrorLevel,
	LogLevelNone:  golog.DisableLevel,
}

// GologLogger implements Logger on top of kataras/golog.
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger and puts both at info level.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	l := &GologLogger{logger: logger}
	l.SetLevel(LogLevelInfo)
	return l
}

func (l *GologLogger) logf(level LogLevel, format string, v []any) {
	if level < l.level {
		return
	}
	l.logger.Logf(gologLevels[level], format, v...)
}

func (l *GologLogger) Debug(format string, v ...any) { l.logf(LogLevelDebug, format, v) }

func (l *GologLogger) Info(format string, v ...any) { l.logf(LogLevelInfo, format, v) }

func (l *GologLogger) Warn(format string, v ...any) { l.logf(LogLevelWarn, format, v) }

func (l *GologLogger) Error(format string, v ...any) { l.logf(LogLevelError, format, v) }

// SetLevel changes the threshold of the wrapper and of the golog instance.
// Unknown levels fall back to info.
func (l *GologLogger) SetLevel(level LogLevel) {
	gl, ok := gologLevels[level]
	if !ok {
		level, gl = LogLevelInfo, golog.InfoLevel
	}
	l.level = level
	l.logger.Level = gl
}

// GetLevel returns the current log level.
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
