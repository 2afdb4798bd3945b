// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Azure/mqttsession/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) waiting(
	ctx context.Context,
	task string,
	attempt uint64,
	delay time.Duration,
	err error,
) {
	l.Log(ctx, slog.LevelWarn, "attempt failed, retrying",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

func (l *logger) succeeded(ctx context.Context, task string, attempt uint64) {
	l.Log(ctx, slog.LevelInfo, "attempt succeeded",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
	)
}

func (l *logger) abandoned(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	l.Log(ctx, slog.LevelWarn, "giving up on non-retryable error",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

func (l *logger) exhausted(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	l.Log(ctx, slog.LevelWarn, "giving up after max attempts",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.String("error", err.Error()),
	)
}
