// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disco-iot/mqtt/internal/wallclock"
	"github.com/eclipse/paho.golang/packets"
	"github.com/stretchr/testify/require"
)

// advanceWhileWaiting moves the fake clock forward whenever something is
// blocked on it outside the run loop, such as the reconnect delay.
func advanceWhileWaiting(t *testing.T, clock *wallclock.Fake) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
			}
			if clock.Waiters() > 0 {
				clock.Advance(time.Second)
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
	})
}

func TestNewSessionClientDefaults(t *testing.T) {
	client, err := NewSessionClient(
		func(context.Context) (Conn, error) { return nil, nil },
	)
	require.NoError(t, err)

	o := client.options
	require.Len(t, client.ID(), 23)
	require.Equal(t, defaultKeepAlive, o.KeepAlive)
	require.Equal(t, time.Second, o.KeepAliveMargin)
	require.Equal(t, defaultConnectTimeout, o.ConnectTimeout)
	require.Equal(t, defaultReconnectDelay, o.ReconnectDelay)
	require.Equal(t, defaultPublishInterval, o.PublishInterval)
	require.Equal(t, defaultStabilizationWindow, o.StabilizationWindow)
	require.Equal(t, defaultTelemetryTopic, o.TelemetryTopic)
	require.Equal(t, []Subscription{{
		TopicFilter: defaultCommandTopic,
		HandlerKey:  commandHandlerKey,
	}}, client.subscriptions)
}

func TestNewSessionClientInvalidOptions(t *testing.T) {
	provider := func(context.Context) (Conn, error) { return nil, nil }

	tests := []struct {
		name     string
		provider ConnectionProvider
		opts     []SessionClientOption
	}{
		{name: "no provider"},
		{
			name:     "keep-alive too short",
			provider: provider,
			opts:     []SessionClientOption{WithKeepAlive(5 * time.Second)},
		},
		{
			name:     "keep-alive too long",
			provider: provider,
			opts:     []SessionClientOption{WithKeepAlive(5 * time.Minute)},
		},
		{
			name:     "fractional keep-alive",
			provider: provider,
			opts: []SessionClientOption{
				WithKeepAlive(10500 * time.Millisecond),
			},
		},
		{
			name:     "margin exceeds keep-alive",
			provider: provider,
			opts: []SessionClientOption{
				WithKeepAliveMargin(10 * time.Second),
			},
		},
		{
			name:     "invalid QoS",
			provider: provider,
			opts:     []SessionClientOption{WithTelemetryQoS(3)},
		},
		{
			name:     "negative delay",
			provider: provider,
			opts:     []SessionClientOption{WithReconnectDelay(-time.Second)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewSessionClient(test.provider, test.opts...)
			var invalid *InvalidArgumentError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestReconnectAfterSessionLoss(t *testing.T) {
	clock := setFakeClock(t)
	advanceWhileWaiting(t, clock)

	first := newFakeConn(t, clock)
	first.deliver(2*time.Second, buildDisconnect(disconnectServerBusy))
	second := newFakeConn(t, clock)
	conns := []*fakeConn{first, second}

	var statuses []Status
	client, err := NewSessionClient(
		func(context.Context) (Conn, error) {
			fc := conns[0]
			conns = conns[1:]
			return fc, nil
		},
		WithReconnectDelay(15*time.Second),
	)
	require.NoError(t, err)
	client.RegisterStatusEventHandler(func(ev *StatusEvent) {
		statuses = append(statuses, ev.Status)
	})

	second.horizon = testEpoch.Add(time.Minute)
	second.onHorizon = func() { require.NoError(t, client.Stop()) }
	require.NoError(t, client.Run(context.Background()))

	require.True(t, first.closed)
	require.True(t, second.closed)
	connects, at := second.sentOfType(packets.CONNECT)
	require.Len(t, connects, 1)
	require.False(t, at[0].Before(testEpoch.Add(17*time.Second)))
	require.Equal(t, []Status{
		StatusConnecting,
		StatusConnected,
		StatusConnecting,
		StatusConnected,
	}, statuses)
}

func TestNetworkLostParksUntilRestored(t *testing.T) {
	clock := setFakeClock(t)

	var client *SessionClient
	first := newFakeConn(t, clock)
	first.respond = func(fc *fakeConn, cp *packets.ControlPacket) {
		brokerResponder(fc, cp)
		if cp.Type == packets.PINGREQ {
			client.NotifyNetworkLost()
		}
	}
	second := newFakeConn(t, clock)

	var attempts atomic.Int32
	conns := []*fakeConn{first, second}
	client = newTestClient(t, nil)
	client.connectionProvider = func(context.Context) (Conn, error) {
		n := attempts.Add(1)
		return conns[n-1], nil
	}

	events := make(chan Status, 10)
	client.RegisterStatusEventHandler(func(ev *StatusEvent) {
		events <- ev.Status
	})

	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()

	require.Equal(t, StatusConnecting, <-events)
	require.Equal(t, StatusConnected, <-events)
	require.Equal(t, StatusConnecting, <-events)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), attempts.Load())

	client.NotifyNetworkRestored()
	require.Equal(t, StatusConnected, <-events)
	require.Equal(t, int32(2), attempts.Load())

	require.NoError(t, client.Stop())
	require.NoError(t, <-done)
	require.True(t, first.closed)
	require.True(t, second.closed)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "connecting", StatusConnecting.String())
	require.Equal(t, "connected", StatusConnected.String())
	require.Equal(t, "fatal", StatusFatal.String())
	require.Equal(t, "Status(7)", Status(7).String())
}

// logLines receives each record written by a text handler.
type logLines chan string

func (l logLines) Write(p []byte) (int, error) {
	select {
	case l <- string(p):
	default:
	}
	return len(p), nil
}

func (l logLines) await(t *testing.T, msg string) {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line := <-l:
			if strings.Contains(line, msg) {
				return
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for log", msg)
		}
	}
}

func TestNetworkLostDuringReconnectDelay(t *testing.T) {
	clock := setFakeClock(t)

	first := newFakeConn(t, clock)
	first.deliver(2*time.Second, buildDisconnect(disconnectServerBusy))
	second := newFakeConn(t, clock)

	var attempts atomic.Int32
	conns := []*fakeConn{first, second}
	lines := make(logLines, 100)
	client := newTestClient(t, nil,
		WithLogger(slog.New(slog.NewTextHandler(lines, nil))),
	)
	client.connectionProvider = func(context.Context) (Conn, error) {
		n := attempts.Add(1)
		return conns[n-1], nil
	}

	events := make(chan Status, 10)
	client.RegisterStatusEventHandler(func(ev *StatusEvent) {
		events <- ev.Status
	})

	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()

	require.Equal(t, StatusConnecting, <-events)
	require.Equal(t, StatusConnected, <-events)
	require.Equal(t, StatusConnecting, <-events)
	lines.await(t, "reconnecting after delay")

	client.NotifyNetworkLost()
	lines.await(t, "waiting for network connectivity")

	// The delay expiring no longer starts a connection attempt.
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), attempts.Load())

	client.NotifyNetworkRestored()
	require.Equal(t, StatusConnected, <-events)
	require.Equal(t, int32(2), attempts.Load())

	require.NoError(t, client.Stop())
	require.NoError(t, <-done)
	require.True(t, second.closed)
}
