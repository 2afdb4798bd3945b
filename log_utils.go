// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/Azure/mqttsession/internal/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
)

type logger struct{ log.Logger }

func (l logger) transition(from, to ConnectionState) {
	l.Log(context.Background(), slog.LevelInfo, "connection state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

func (l logger) connected(op *operation, sessionPresent bool) {
	l.Log(context.Background(), slog.LevelInfo, "connected",
		slog.String("operation", op.kind.String()),
		slog.Uint64("attempt", op.attempt),
		slog.Bool("session_present", sessionPresent),
	)
}

func (l logger) connectionLost(cause error, swept int) {
	attrs := []slog.Attr{slog.Int("outstanding", swept)}
	if cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	l.Log(context.Background(), slog.LevelWarn, "connection lost", attrs...)
}

func (l logger) rejected(kind OperationKind, topic string, code ReasonCode) {
	attrs := []slog.Attr{
		slog.String("operation", kind.String()),
		slog.String("reason", code.String()),
	}
	if topic != "" {
		attrs = append(attrs, slog.String("topic", topic))
	}
	l.Log(context.Background(), slog.LevelDebug, "operation rejected", attrs...)
}

func (l logger) submitted(op *operation) {
	ctx := context.Background()
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.Uint64("operation_id", uint64(op.id)),
		slog.String("operation", op.kind.String()),
	}
	if op.topic != "" {
		attrs = append(attrs,
			slog.String("topic", op.topic),
			slog.Int("qos", int(op.qos)),
		)
	}
	l.Log(ctx, slog.LevelDebug, "operation submitted", attrs...)
}

func (l logger) resolved(op *operation, code ReasonCode) {
	l.Log(context.Background(), slog.LevelDebug, "operation resolved",
		slog.Uint64("operation_id", uint64(op.id)),
		slog.String("operation", op.kind.String()),
		slog.String("reason", code.String()),
	)
}

func (l logger) doubleResolve(
	id OperationID,
	code ReasonCode,
	attrs ...slog.Attr,
) {
	l.Log(context.Background(), slog.LevelWarn, "operation already resolved",
		append([]slog.Attr{
			slog.Uint64("operation_id", uint64(id)),
			slog.String("reason", code.String()),
		}, attrs...)...,
	)
}

func (l logger) swept(n int, code ReasonCode) {
	l.Log(context.Background(), slog.LevelInfo, "outstanding operations resolved",
		slog.Int("count", n),
		slog.String("reason", code.String()),
	)
}

func (l logger) Packet(ctx context.Context, name string, packet any) {
	// This is expensive; bail out if we don't need it.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := realValue(reflect.ValueOf(packet))
	l.Log(ctx, slog.LevelDebug, name, reflectAttrs(val)...)
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	num := typ.NumField()
	var attrs []slog.Attr
	for i := range num {
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
	if val.Kind() == reflect.Invalid || val.IsZero() {
		return nil
	}

	switch name {
	// Paho's struct nesting is not particularly useful to log.
	case "properties":
		return reflectAttrs(val)

	// Subscriptions are one-at-a-time for the session client.
	case "subscriptions":
		if subs, ok := val.Interface().([]paho.SubscribeOptions); ok {
			return reflectAttrs(reflect.ValueOf(subs[0]))
		}
	case "topics":
		if topics, ok := val.Interface().([]string); ok {
			return []slog.Attr{slog.String("topic", topics[0])}
		}

	// Never log credentials.
	case "password":
		return []slog.Attr{slog.String(name, "<redacted>")}

	// Fix QoS not being actually PascalCased.
	case "qo_s":
		return []slog.Attr{slog.Any("qos", val.Interface())}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.Int(name+"_len", len(v))}

	case paho.UserProperties:
		if len(v) == 0 {
			return nil
		}
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

func realValue(typ reflect.Value) reflect.Value {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ
}
