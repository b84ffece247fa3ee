package snsctx

import (
	"context"
	"encoding/hex"
	"log/slog"
)

type ctxIndex int

const ctxIndexVerbose ctxIndex = iota

func IsVerbose(ctx context.Context) bool {
	val := ctx.Value(ctxIndexVerbose)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// Trace logs a raw bus frame at debug level when the context is verbose.
func Trace(ctx context.Context, msg string, frame []byte) {
	if !IsVerbose(ctx) {
		return
	}
	slog.DebugContext(ctx, msg, "frame", hex.EncodeToString(frame))
}
