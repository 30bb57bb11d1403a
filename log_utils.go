// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/disco-iot/mqtt/internal"
)

type logger struct{ internal.Logger }

func (l logger) connecting(ctx context.Context, clientID string) {
	l.Log(ctx, slog.LevelInfo, "connecting to MQTT server",
		slog.String("client_id", clientID),
	)
}

func (l logger) connected(
	ctx context.Context,
	sessionPresent bool,
	keepAlive time.Duration,
) {
	l.Log(ctx, slog.LevelInfo, "connected to MQTT server",
		slog.Bool("session_present", sessionPresent),
		slog.Duration("keep_alive", keepAlive),
	)
}

func (l logger) disconnected(ctx context.Context, err error) {
	if err == nil {
		l.Log(ctx, slog.LevelInfo, "disconnected from MQTT server")
		return
	}
	l.Log(ctx, slog.LevelWarn, "disconnected from MQTT server",
		slog.String("error", err.Error()),
	)
}

func (l logger) status(ctx context.Context, s Status) {
	l.Log(ctx, slog.LevelInfo, "status changed",
		slog.String("status", s.String()),
	)
}

func (l logger) waiting(ctx context.Context, reason string, d time.Duration) {
	l.Log(ctx, slog.LevelInfo, reason, slog.Duration("wait", d))
}

func (l logger) subscribed(ctx context.Context, filter string, reason byte) {
	if reason >= subackFailureThreshold {
		l.Log(ctx, slog.LevelWarn, "subscription rejected",
			slog.String("topic", filter),
			slog.Int("reason_code", int(reason)),
		)
		return
	}
	l.Log(ctx, slog.LevelInfo, "subscribed",
		slog.String("topic", filter),
		slog.Int("qos", int(reason)),
	)
}
