package infra

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Guizzs26/abx-sheet-sync/internal/config"
)

// SetupLogger builds the process logger. The returned func closes the mirror log file, if any
func SetupLogger(cfg *config.Config) (*slog.Logger, func()) {
	return NewLogger(os.Stderr, cfg)
}

// NewLogger builds a logger writing to out and, when LOG_FILE is set, to that file as well
func NewLogger(out io.Writer, cfg *config.Config) (*slog.Logger, func()) {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	closer := func() {}
	writer := out
	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			writer = io.MultiWriter(out, logFile)
			closer = func() { _ = logFile.Close() }
		}
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToUpper(cfg.LogFormat) == "JSON" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler).With("instance", cfg.InstanceID), closer
}
