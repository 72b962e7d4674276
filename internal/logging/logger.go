// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries. Upload runs add their run_id
// with WithFields so every line of a run can be correlated.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger based on level and format,
// writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Use "json" format in production for machine parsing (ELK, CloudWatch, etc.)
// Use "text" format in development for human readability.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination. The CLI logs to
// stderr so stdout carries only the upload report.
func SetupWriter(w io.Writer, level, format string) *slog.Logger {
	logger := New(w, level, format)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger without touching the global default.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level. The CLI debug
// levels none, low and verbose are accepted as well.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug", DebugLow, DebugVerbose:
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug levels of the upload CLI.
const (
	DebugNone    = "none"
	DebugLow     = "low"
	DebugVerbose = "verbose"
)

// ErrInvalidDebugLevel is returned for a --debuglevel outside the CLI vocabulary.
var ErrInvalidDebugLevel = errors.New("invaliddebuglevel")

// ParseDebugLevel validates a CLI debug level and returns the log level it
// maps to. verbose reports whether prepared records should be logged too.
// An empty name leaves the configured level in place.
func ParseDebugLevel(name string) (level string, verbose bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return "", false, nil
	case DebugNone:
		return "info", false, nil
	case DebugLow:
		return "debug", false, nil
	case DebugVerbose:
		return "debug", true, nil
	default:
		return "", false, fmt.Errorf("%w: %q (want none, low or verbose)", ErrInvalidDebugLevel, name)
	}
}

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries.
//
// Usage:
//
//	func handleUpload(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("upload received", "file", header.Filename)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	runLogger := logging.WithFields(ctx,
//	    "run_id", runID,
//	    "source", filename,
//	)
//	runLogger.Info("upload run started")
//	// ... later ...
//	runLogger.Info("upload run finished", "created", created)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
