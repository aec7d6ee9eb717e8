package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides an interface into the underlying logging system for Hibiki's purposes.
type Logger struct {
	logger       *slog.Logger
	sink         io.WriteCloser
	traceEnabled bool
}

// Config contains logging information used to set up the logging framework
type Config struct {
	// Log Level.  One of: trace, debug, info, warn, error
	Level string
	// Path to the file to log into
	FilePath string
	// Maximum size in megabytes of the log file before it is rotated
	MaxSizeMB int
	// Maximum number of rotated log files to retain
	MaxBackups int
}

func New(config Config) (*Logger, error) {
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := config.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	sink := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(config.Level),
	}

	handler := slog.NewJSONHandler(sink, opts)

	logger := &Logger{
		logger:       slog.New(handler),
		sink:         sink,
		traceEnabled: strings.EqualFold(config.Level, "trace"),
	}

	return logger, nil
}

// Close the log sink
func (l *Logger) Close() {
	if err := l.sink.Close(); err != nil {
		_, _ = os.Stderr.WriteString("error closing logger: " + err.Error() + "\n")
	}
}

// Debug logs a message a debug Level
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs a message at info Level
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a message at info Level
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs a message at error Level.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// parseLogLevel is a helper to convert a string log Level into the slog version.  Defaults to info if a matching log
// Level cannot be found.
func parseLogLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "trace":
		return slog.LevelDebug // Trace level is handled by this log package instead of slog
	default:
		return slog.LevelInfo
	}
}
