package reqctx

import (
	"context"

	"github.com/mythsumon/job-sub002/internal/logger"
	"github.com/rs/zerolog"
)

type ctxKey string

const (
	keyRID ctxKey = "request_id"
	keyUID ctxKey = "uid"
)

// WithRID stores the request id used to correlate log lines.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns the request id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

// WithUID stores the authenticated caller.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyUID, uid)
}

// UID returns the authenticated caller if present.
func UID(ctx context.Context) string {
	v, _ := ctx.Value(keyUID).(string)
	return v
}

// Logger returns the global logger annotated with whatever ids ctx carries.
func Logger(ctx context.Context) *zerolog.Logger {
	l := logger.Log.With()
	if rid := RID(ctx); rid != "" {
		l = l.Str("request_id", rid)
	}
	if uid := UID(ctx); uid != "" {
		l = l.Str("uid", uid)
	}
	out := l.Logger()
	return &out
}
