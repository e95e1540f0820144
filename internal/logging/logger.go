// Package logging provides structured logging configuration using log/slog.
//
// Imports carry their ID in the context so every log entry of one import can
// be correlated. Requests to the metrics server carry chi's request ID the
// same way.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const ctxKeyImportID contextKey = "import_id"

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Output goes to w, or stderr when w is nil so stdout stays free for the
// import summary.
func Setup(level, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
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

// WithImportID returns a context carrying the import ID.
func WithImportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyImportID, id)
}

// ImportID returns the import ID stored by WithImportID, or "".
func ImportID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyImportID).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger enriched with import and request context.
//
// Usage:
//
//	ctx = logging.WithImportID(ctx, importID)
//	logging.FromContext(ctx).Info("import started", "source", path)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if id := ImportID(ctx); id != "" {
		logger = logger.With("import_id", id)
	}
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
//	log := logging.WithFields(ctx, "source", path, "format", "json")
//	log.Info("import started")
//	// ... later ...
//	log.Info("import committed", "inserted", n)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
