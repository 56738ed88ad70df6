// Package logger is a thin logrus adapter: it hands out per-component
// *logrus.Entry loggers while keeping the call-site shape
// (Info(msg, key, val, ...)) the rest of the codebase already uses,
// grounded on btnmasher-dircd/cmd/dircd/main.go's functional-option
// construction and server.go's package-level *logrus.Logger.
package logger

import (
	"os"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

// LogLevel mirrors the four levels the rest of the codebase already logs
// at; SetLevel maps these onto logrus's richer level set.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger wraps a logrus.Entry, adding the key/value call convention the
// rest of the tree uses instead of logrus's WithFields chaining at every
// call site.
type Logger struct {
	entry *logrus.Entry
}

// New constructs a root Logger writing to stdout with the
// nested-logrus-formatter's compact single-line layout, the way
// btnmasher-dircd's main.go configures its top-level *logrus.Logger.
func New() *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &Logger{entry: logrus.NewEntry(base)}
}

// SetLevel sets the minimum log level on the underlying logrus.Logger.
func (l *Logger) SetLevel(level LogLevel) {
	l.entry.Logger.SetLevel(level.logrusLevel())
}

// WithComponent returns a child Logger tagging every entry with
// component=name, mirroring btnmasher-dircd's logger.WithField("component",
// ...) sub-logger pattern.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{entry: l.entry.WithField("component", name)}
}

func fieldsFrom(keysAndValues []interface{}) logrus.Fields {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

func (l *Logger) log(level logrus.Level, msg string, keysAndValues ...interface{}) {
	entry := l.entry
	if fields := fieldsFrom(keysAndValues); fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Log(level, msg)
}

// Debug logs a debug message with optional key/value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(logrus.DebugLevel, msg, keysAndValues...)
}

// Info logs an info message with optional key/value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(logrus.InfoLevel, msg, keysAndValues...)
}

// Warn logs a warning message with optional key/value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(logrus.WarnLevel, msg, keysAndValues...)
}

// Error logs an error message with optional key/value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(logrus.ErrorLevel, msg, keysAndValues...)
}
