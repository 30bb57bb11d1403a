// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type ledCommands struct {
	on, off, status int
}

func (l *ledCommands) table() CommandTable {
	return CommandTable{
		"led_on":  func() { l.on++ },
		"led_off": func() { l.off++ },
		"status":  func() { l.status++ },
	}
}

func TestCommandDispatch(t *testing.T) {
	leds := &ledCommands{}
	metrics := NewMetrics(prometheus.NewRegistry())
	d := commandDispatcher{table: leds.table(), metrics: metrics}
	ctx := context.Background()

	require.True(t, d.dispatch(ctx, []byte("led_on")))
	require.True(t, d.dispatch(ctx, []byte("status")))
	require.False(t, d.dispatch(ctx, []byte("foo")))
	require.False(t, d.dispatch(ctx, []byte("LED_ON")))
	require.False(t, d.dispatch(ctx, []byte("led_on ")))
	require.False(t, d.dispatch(ctx, nil))

	require.Equal(t, &ledCommands{on: 1, status: 1}, leds)
	require.Equal(
		t,
		1.0,
		testutil.ToFloat64(metrics.Commands.WithLabelValues("led_on")),
	)
	require.Equal(
		t,
		4.0,
		testutil.ToFloat64(metrics.Commands.WithLabelValues("unknown")),
	)
}

func TestCommandDispatchWithoutTable(t *testing.T) {
	d := commandDispatcher{}
	require.False(t, d.dispatch(context.Background(), []byte("led_on")))
}

func TestCommandsOverSession(t *testing.T) {
	clock := setFakeClock(t)
	fc := newFakeConn(t, clock)
	leds := &ledCommands{}
	client := newTestClient(t, fc, WithCommands(leds.table()))

	publish := func(id uint16, qos byte, payload string) *packets.Publish {
		return &packets.Publish{
			Topic:      defaultCommandTopic,
			PacketID:   id,
			QoS:        qos,
			Payload:    []byte(payload),
			Properties: &packets.Properties{},
		}
	}
	fc.deliver(2*time.Second, publish(100, 1, "led_on"))
	fc.deliver(3*time.Second, publish(101, 1, "foo"))
	fc.deliver(4*time.Second, publish(102, 2, "led_off"))
	fc.deliver(4500*time.Millisecond, publish(102, 2, "led_off"))
	fc.deliver(5*time.Second, &packets.Pubrel{
		PacketID:   102,
		Properties: &packets.Properties{},
	})
	fc.deliver(6*time.Second, publish(0, 0, "status"))
	fc.deliver(7*time.Second, &packets.Publish{
		Topic:      "elsewhere",
		Payload:    []byte("led_on"),
		Properties: &packets.Properties{},
	})

	require.NoError(t, runUntil(t, client, fc, 10*time.Second))

	require.Equal(t, &ledCommands{on: 1, off: 1, status: 1}, leds)

	pubacks, _ := fc.sentOfType(packets.PUBACK)
	require.Len(t, pubacks, 2)
	require.Equal(t, uint16(100), pubacks[0].Content.(*packets.Puback).PacketID)
	require.Equal(t, uint16(101), pubacks[1].Content.(*packets.Puback).PacketID)

	pubrecs, _ := fc.sentOfType(packets.PUBREC)
	require.Len(t, pubrecs, 2)

	pubcomps, _ := fc.sentOfType(packets.PUBCOMP)
	require.Len(t, pubcomps, 1)
	require.Equal(
		t,
		uint16(102),
		pubcomps[0].Content.(*packets.Pubcomp).PacketID,
	)
}
