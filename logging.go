package rtos

import (
	"context"

	"github.com/zoobzio/capitan"
)

// emitInfo, emitWarn, and emitError are thin wrappers around capitan's
// package-level log functions, giving every call site in the kernel a
// single place that decides whether a nil context should become
// context.Background(). Kernel operations frequently have no caller
// context to thread through (they're invoked from the scheduler's own
// goroutines, not from a request path), so this is the kernel's
// equivalent of the teacher's ctx-threading pattern without forcing
// every signature to accept a context.Context it can't always supply.
func emitInfo(ctx context.Context, sig capitan.Signal, fields ...capitan.Field) {
	capitan.Info(withBackground(ctx), sig, fields...)
}

func emitWarn(ctx context.Context, sig capitan.Signal, fields ...capitan.Field) {
	capitan.Warn(withBackground(ctx), sig, fields...)
}

func emitError(ctx context.Context, sig capitan.Signal, fields ...capitan.Field) {
	capitan.Error(withBackground(ctx), sig, fields...)
}

func withBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
