// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"testing"

	"github.com/disco-iot/mqtt/internal/log"
	"github.com/stretchr/testify/require"
)

type attrErr struct{}

func (attrErr) Error() string { return "broker went away" }

func (attrErr) Attrs() []slog.Attr {
	return []slog.Attr{slog.Int("reason_code", 0x8b)}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l log.Logger
	require.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.Err(context.Background(), errors.New("ignored"))
}

func TestErrIncludesAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := log.Wrap(slog.New(slog.NewTextHandler(&buf, nil)))

	l.Err(context.Background(), attrErr{})
	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), `msg="broker went away"`)
	require.Contains(t, buf.String(), "reason_code=139")
}

func TestWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	l := log.Wrap(slog.New(slog.NewTextHandler(&buf, nil)))

	l.Warn(context.Background(), errors.New("unmatched puback"))
	require.Contains(t, buf.String(), "level=WARN")
}

// recorder keeps the function each record is attributed to.
type recorder struct{ funcs []string }

func (*recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	frame, _ := runtime.CallersFrames([]uintptr{rec.PC}).Next()
	r.funcs = append(r.funcs, frame.Function)
	return nil
}

func (r *recorder) WithAttrs([]slog.Attr) slog.Handler { return r }

func (r *recorder) WithGroup(string) slog.Handler { return r }

func TestRecordsAttributedToCaller(t *testing.T) {
	rec := &recorder{}
	l := log.Wrap(slog.New(rec))
	ctx := context.Background()

	l.Log(ctx, slog.LevelInfo, "connected")
	l.Err(ctx, errors.New("connect failed"))
	l.Warn(ctx, attrErr{})

	const caller = "github.com/disco-iot/mqtt/internal/log_test." +
		"TestRecordsAttributedToCaller"
	require.Equal(t, []string{caller, caller, caller}, rec.funcs)
}
