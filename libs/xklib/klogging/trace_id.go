package klogging

import (
	"context"
)

// EmbedTraceId returns a child ctx whose log entries carry traceId.
func EmbedTraceId(ctx context.Context, traceId string) context.Context {
	ctx, info := CreateCtxInfo(ctx)
	info.With("traceId", traceId)
	return ctx
}

// GetTraceId returns "" when no trace id was embedded.
func GetTraceId(ctx context.Context) string {
	return GetCurrentCtxInfo(ctx).FindByKey("traceId", "")
}
