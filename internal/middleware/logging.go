// Package middleware provides request-scoped logging, tracing, authentication
// and rate limiting for the HTTP layer.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the process-wide structured logger. Records logged with a
// request context carry its request, user and trace ids.
var Logger = newLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// contextFields maps context keys to the fiber locals that fill them.
var contextFields = []struct {
	key   contextKey
	local string
}{
	{RequestIDKey, "requestid"},
	{UserIDKey, "userID"},
	{TraceIDKey, "traceID"},
}

// newLogger writes JSON in production and text elsewhere. level accepts
// slog names (debug, info, warn, error); anything else means info.
func newLogger(w io.Writer, env, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(env) {
	case "production", "prod":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(&ctxHandler{h})
}

type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, f := range contextFields {
		if v, ok := ctx.Value(f.key).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(f.key), v))
		}
	}
	// Code outside the HTTP chain only has the span.
	if _, ok := ctx.Value(TraceIDKey).(string); !ok {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(slog.String(string(TraceIDKey), sc.TraceID().String()))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

// ContextMiddleware copies request, user and trace ids from fiber locals
// into the user context so service logs carry them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(enrichContext(c.UserContext(), c))
		return c.Next()
	}
}

func enrichContext(ctx context.Context, c *fiber.Ctx) context.Context {
	for _, f := range contextFields {
		if v, ok := c.Locals(f.local).(string); ok && v != "" {
			ctx = context.WithValue(ctx, f.key, v)
		}
	}
	return ctx
}

// requestLevel grades an access log line by outcome.
func requestLevel(status int, err error) slog.Level {
	switch {
	case err != nil || status >= fiber.StatusInternalServerError:
		return slog.LevelError
	case status >= fiber.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// StructuredLogger writes one access log line per request.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", c.Route().Path),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		// Auth runs later in the chain, so the user id is only in locals now.
		ctx := enrichContext(c.UserContext(), c)
		Logger.LogAttrs(ctx, requestLevel(status, err), "request", attrs...)
		return err
	}
}
