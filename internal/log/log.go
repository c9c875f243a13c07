// Package log provides structured logging for go-drowse.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options configures the global logger.
type Options struct {
	Level  string    // debug, info, warn or error
	JSON   bool      // JSON lines instead of text
	File   string    // Rotating log file, in addition to Output; empty disables
	Output io.Writer // Defaults to stdout
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FILE and GO_ENV.
func OptionsFromEnv() Options {
	return Options{
		Level: os.Getenv("LOG_LEVEL"),
		JSON:  os.Getenv("GO_ENV") == "production",
		File:  os.Getenv("LOG_FILE"),
	}
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a logger without touching the global one.
func New(o Options) *slog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	if o.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    100, // megabytes
			MaxAge:     7,   // days
			MaxBackups: 3,
			LocalTime:  true,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(o.Level)}
	if o.JSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Init initializes the global logger with the specified level, taking the
// format and log file from the environment.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	o := OptionsFromEnv()
	o.Level = level
	InitWith(o)
}

// InitWith initializes the global logger. Only the first call has effect.
func InitWith(o Options) {
	once.Do(func() {
		logger = New(o)
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
