package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the optional rotating log file written next to stdout.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func NewJSONLogger(service, level string) *slog.Logger {
	return newLogger(os.Stdout, service, level)
}

// NewJSONLoggerTo writes to w. The MCP server uses it to keep stdout free for the protocol.
func NewJSONLoggerTo(w io.Writer, service, level string) *slog.Logger {
	return newLogger(w, service, level)
}

// NewJSONLoggerWithFile also writes every record to a lumberjack-rotated file. It
// returns a closer for the file; with an empty path it behaves like NewJSONLogger.
func NewJSONLoggerWithFile(service, level string, file FileOptions) (*slog.Logger, io.Closer) {
	path := strings.TrimSpace(file.Path)
	if path == "" {
		return NewJSONLogger(service, level), io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    positiveOr(file.MaxSizeMB, 100),
		MaxBackups: positiveOr(file.MaxBackups, 5),
		MaxAge:     positiveOr(file.MaxAgeDays, 14),
		Compress:   true,
	}
	return newLogger(io.MultiWriter(os.Stdout, rotator), service, level), rotator
}

func newLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
