package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/pipable/pipable/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

const redacted = "[redacted]"

// NewLogger builds the process logger. Attributes that look like credentials
// are redacted so config dumps and request logs never carry API keys.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: redactSecrets,
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if strings.HasSuffix(key, "api_key") || strings.Contains(key, "secret") || key == "dsn" {
		if attr.Value.Kind() == slog.KindString && attr.Value.String() != "" {
			return slog.String(attr.Key, redacted)
		}
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
