// Package logger provides structured logging functionality
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger for application-wide logging
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // text, json
	Output io.Writer // defaults to stdout
}

// New creates a new structured logger
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithComponent returns a logger with a component attribute
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With("component", component),
	}
}

// WithJob returns a logger with job context attributes
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{
		Logger: l.With("job_id", jobID),
	}
}

// WithStage returns a logger with a pipeline stage attribute
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{
		Logger: l.With("stage", stage),
	}
}
