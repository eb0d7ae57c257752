// Package logger configures the process-wide structured logger. Output goes
// to stderr so MCP stdio transports keep stdout clean.
package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

var std = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
})

// Setup sets the global log level
func Setup(level string) {
	std.SetLevel(parseLevel(level))
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// With returns a logger carrying the given key-value context
func With(keyvals ...any) *log.Logger {
	return std.With(keyvals...)
}

func Debug(msg string, keyvals ...any) { std.Debug(msg, keyvals...) }

func Info(msg string, keyvals ...any) { std.Info(msg, keyvals...) }

func Warn(msg string, keyvals ...any) { std.Warn(msg, keyvals...) }

func Error(msg string, keyvals ...any) { std.Error(msg, keyvals...) }
