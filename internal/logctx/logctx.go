// Package logctx carries zerolog loggers through context.Context.
//
// A sync run attaches a logger enriched with run-level fields, and each
// fetch task derives a child logger with its user and key:
//
//	ctx = logctx.WithLogger(ctx, logging.WithPhase("aggregate"))
//	ctx = logctx.WithUser(ctx, userID, key)
//	logctx.FromContext(ctx).Debug().Msg("fetched")
package logctx

import (
	"context"

	"github.com/eunmann/s3-user-agg/pkg/logging"
	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. Without one it falls
// back to the global logger from pkg/logging.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a new context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithUser tags the context logger with the user and object key being processed.
func WithUser(ctx context.Context, userID, key string) context.Context {
	logger := FromContext(ctx).With().Str("user_id", userID).Str("key", key).Logger()
	return WithLogger(ctx, logger)
}
