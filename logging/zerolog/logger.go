// Package zerolog bridges the conveyor Logger interface to
// github.com/rs/zerolog.
package zerolog

import (
	"github.com/rs/zerolog"
	"github.com/taskline/conveyor/core"
)

// Logger adapts a zerolog.Logger to core.Logger. Fields map onto zerolog
// event fields one to one.
type Logger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps a zerolog.Logger.
func New(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...core.Field) {
	l.emit(l.zl.Info(), msg, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...core.Field) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *Logger) emit(e *zerolog.Event, msg string, fields []core.Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			e = e.Str(f.Key, v)
		case int:
			e = e.Int(f.Key, v)
		case error:
			e = e.AnErr(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}
	e.Msg(msg)
}
