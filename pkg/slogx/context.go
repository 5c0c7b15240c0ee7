package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("req_id", reqID))
}

// WithSession tags every log line of a websocket session with the user it
// belongs to and the session token, so supersession and disconnect races can
// be followed in the logs.
func WithSession(ctx context.Context, userID, sessionID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("user_id", userID, "session_id", sessionID))
}
