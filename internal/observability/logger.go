package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/askdb/askdb/internal/config"
)

type traceIDContextKey struct{}

// NewLogger writes to writer only. Records logged with a context carrying a
// trace id get a trace_id attribute.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	return newServiceLogger(cfg, formatHandler(writer, cfg.Observability.LogLevel, cfg.Observability.LogJSON))
}

// OpenLogger builds the process logger. When ASKDB_LOG_FILE is set, records
// also go to that file as JSON regardless of ASKDB_LOG_JSON. The close
// function is always non-nil.
func OpenLogger(cfg config.Config, writer io.Writer) (*slog.Logger, func() error, error) {
	path := cfg.Observability.LogFile
	if path == "" {
		return NewLogger(cfg, writer), func() error { return nil }, nil
	}
	if writer == nil {
		writer = io.Discard
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	level := cfg.Observability.LogLevel
	fanout := slogmulti.Fanout(
		formatHandler(writer, level, cfg.Observability.LogJSON),
		formatHandler(file, level, true),
	)
	return newServiceLogger(cfg, fanout), file.Close, nil
}

func newServiceLogger(cfg config.Config, sink slog.Handler) *slog.Logger {
	handler := slogmulti.Pipe(slogmulti.NewHandleInlineMiddleware(attachTraceID)).Handler(sink)
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func attachTraceID(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		record = record.Clone()
		record.AddAttrs(slog.String("trace_id", traceID))
	}
	return next(ctx, record)
}

func formatHandler(w io.Writer, level slog.Leveler, asJSON bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

// TraceIDFromContext returns "" outside a traced request.
func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDContextKey{}).(string)
	return traceID
}
