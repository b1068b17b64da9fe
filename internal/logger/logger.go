// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// workloadKey is the context key for the workload being reconciled.
type workloadKey struct{}

// New creates a new structured JSON logger writing to stdout.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel maps a config value (debug, info, warn, error) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// WithWorkload returns a new context carrying the workload ID.
func WithWorkload(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workloadKey{}, id)
}

// WorkloadFromContext extracts the workload ID from the context.
func WorkloadFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(workloadKey{}).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger with context fields (workload, etc.) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := WorkloadFromContext(ctx); id != "" {
		return base.With("workload", id)
	}
	return base
}
