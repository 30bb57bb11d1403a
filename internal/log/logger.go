// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/disco-iot/mqtt/internal/wallclock"
)

type (
	// Logger is a wrapper around an slog.Logger with additional helpers and nil
	// checking. The zero value discards everything.
	Logger struct{ logger *slog.Logger }

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface {
		Attrs() []slog.Attr
	}
)

// Wrap the slog logger.
func Wrap(logger *slog.Logger) Logger {
	return Logger{logger}
}

// Enabled reports whether a record at the given level would be emitted.
func (l *Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger != nil && l.logger.Enabled(ctx, level)
}

// Log is designed to build logging wrappers; it should not be called directly.
// See: https://pkg.go.dev/log/slog#hdr-Wrapping_output_methods
func (l *Logger) Log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	l.log(ctx, 3, level, msg, attrs...)
}

// log emits a record attributed to the caller skip frames up the stack, as
// counted by runtime.Callers from here.
func (l *Logger) log(
	ctx context.Context,
	skip int,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}

	// Records carry the injected clock.
	now := wallclock.Instance.Now()
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])

	r := slog.NewRecord(now, level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.logger.Handler().Handle(ctx, r)
}

// Err logs an error with structured logging.
func (l *Logger) Err(ctx context.Context, err error) {
	l.errAt(ctx, slog.LevelError, err)
}

// Warn logs an error that the caller recovered from.
func (l *Logger) Warn(ctx context.Context, err error) {
	l.errAt(ctx, slog.LevelWarn, err)
}

func (l *Logger) errAt(ctx context.Context, level slog.Level, err error) {
	if !l.Enabled(ctx, level) {
		return
	}
	// Skip errAt and the exported wrapper.
	if a, ok := err.(Attrs); ok {
		l.log(ctx, 4, level, err.Error(), a.Attrs()...)
	} else {
		l.log(ctx, 4, level, err.Error())
	}
}
