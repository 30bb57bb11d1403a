// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/disco-iot/mqtt/internal/log"
	"github.com/eclipse/paho.golang/packets"
	"github.com/iancoleman/strcase"
)

// Logger adds packet tracing to the shared logger.
type Logger struct{ log.Logger }

// Packet logs the exported fields of a wire packet at debug level, with field
// names in snake case.
func (l Logger) Packet(ctx context.Context, name string, packet any) {
	// This is expensive; bail out if we don't need it.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := realValue(reflect.ValueOf(packet))
	switch {
	case val.Kind() == reflect.Invalid:
		l.Log(ctx, slog.LevelWarn, fmt.Sprintf("%s not available", name))
	case val.Kind() != reflect.Struct || val.IsZero():
		// PINGREQ and PINGRESP have no fields worth printing.
		l.Log(ctx, slog.LevelDebug, name)
	default:
		l.Log(ctx, slog.LevelDebug, name, reflectAttrs(val)...)
	}
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}

		attrs = append(attrs, reflectAttr(
			strcase.ToSnake(f.Name),
			realValue(val.Field(i)),
		)...)
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) []slog.Attr {
	// Ignore zero values to keep the log cleaner.
	if missingValue(val) {
		return nil
	}

	switch name {
	case "properties":
		return reflectAttrs(val)

	// The session subscribes one filter per SUBSCRIBE.
	case "subscriptions":
		if subs, ok := val.Interface().([]packets.SubOptions); ok {
			return reflectAttrs(reflect.ValueOf(subs[0]))
		}
	case "reasons":
		if reasons, ok := val.Interface().([]byte); ok {
			return []slog.Attr{slog.Int("reason_code", int(reasons[0]))}
		}

	// Passwords never reach the log.
	case "password":
		return []slog.Attr{slog.String(name, "***")}

	case "qo_s", "will_qos":
		return []slog.Attr{slog.Any("qos", val.Interface())}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.String(name, string(v))}

	case []packets.User:
		attrs := make([]any, len(v))
		for i, p := range v {
			attrs[i] = slog.String(p.Key, p.Value)
		}
		return []slog.Attr{slog.Group(name, attrs...)}
	}

	if val.Kind() == reflect.Struct {
		as := reflectAttrs(val)
		if len(as) == 0 {
			return nil
		}

		cpy := make([]any, len(as))
		for i, a := range as {
			cpy[i] = a
		}
		return []slog.Attr{slog.Group(name, cpy...)}
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}

func realValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	return val
}

func missingValue(val reflect.Value) bool {
	return val.Kind() == reflect.Invalid || val.IsZero()
}
