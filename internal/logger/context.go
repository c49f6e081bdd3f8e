package logger

import (
	"context"

	"go.uber.org/zap"
)

// ctxKey is unexported to avoid context-key collisions.
type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger attached to ctx, or the global sugared logger.
func From(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}
	return zap.S()
}

// With attaches fields to the logger already carried by ctx.
func With(ctx context.Context, kv ...any) context.Context {
	return WithContext(ctx, From(ctx).With(kv...))
}
