// Package service holds the business operations behind the HTTP handlers.
package service

import (
	"context"
	"log/slog"

	"knot/internal/middleware"
	"knot/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page clamps limit and offset to the accepted range.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// step runs fn inside a child span named after one saga stage.
func step(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	span, ctx := observability.NewSpan(ctx, name, attrs...)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.SetError(err)
		middleware.Logger.WarnContext(ctx, "saga step failed",
			slog.String("step", name),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
