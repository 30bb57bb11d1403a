// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"bytes"
	"context"
	"io"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/disco-iot/mqtt/internal/wallclock"
	"github.com/disco-iot/mqtt/retry"
	"github.com/eclipse/paho.golang/packets"
	"github.com/stretchr/testify/require"
)

type (
	// fakeConn is a scripted broker connection driven by a fake clock. Poll
	// advances the clock up to the next scheduled inbound packet, so a whole
	// session can run on the test goroutine in simulated time.
	fakeConn struct {
		t     *testing.T
		clock *wallclock.Fake

		inbound bytes.Buffer
		pending []scheduledPacket

		sent   []*packets.ControlPacket
		sentAt []time.Time

		closed   bool
		hangup   bool
		writeErr error

		// Poll never advances past the horizon; onHorizon is called instead.
		horizon   time.Time
		onHorizon func()

		// respond reacts to every packet written by the client.
		respond func(fc *fakeConn, cp *packets.ControlPacket)
	}

	scheduledPacket struct {
		at   time.Time
		data []byte
	}
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newFakeConn(t *testing.T, clock *wallclock.Fake) *fakeConn {
	return &fakeConn{t: t, clock: clock, respond: brokerResponder}
}

func (fc *fakeConn) Read(p []byte) (int, error) {
	if fc.inbound.Len() == 0 {
		return 0, io.EOF
	}
	return fc.inbound.Read(p)
}

func (fc *fakeConn) Write(p []byte) (int, error) {
	if fc.closed {
		return 0, net.ErrClosed
	}
	if fc.writeErr != nil {
		return 0, fc.writeErr
	}
	cp, err := packets.ReadPacket(bytes.NewReader(p))
	require.NoError(fc.t, err)
	fc.sent = append(fc.sent, cp)
	fc.sentAt = append(fc.sentAt, fc.clock.Now())
	if fc.respond != nil {
		fc.respond(fc, cp)
	}
	return len(p), nil
}

func (fc *fakeConn) Close() error {
	fc.closed = true
	return nil
}

func (fc *fakeConn) Poll(timeout time.Duration) (PollResult, error) {
	if fc.closed || fc.hangup {
		return PollHangup, nil
	}
	if fc.inbound.Len() > 0 {
		return PollReadable, nil
	}

	now := fc.clock.Now()
	wake := now.Add(timeout)
	if len(fc.pending) > 0 && !fc.pending[0].at.After(wake) {
		next := fc.pending[0]
		fc.pending = fc.pending[1:]
		fc.clock.Advance(max(0, next.at.Sub(now)))
		fc.inbound.Write(next.data)
		return PollReadable, nil
	}

	if !fc.horizon.IsZero() && wake.After(fc.horizon) {
		fc.clock.Advance(max(0, fc.horizon.Sub(now)))
		require.NotNil(fc.t, fc.onHorizon)
		fc.onHorizon()
		return PollTimeout, nil
	}

	fc.clock.Advance(timeout)
	return PollTimeout, nil
}

// deliver schedules an inbound packet after the given delay.
func (fc *fakeConn) deliver(after time.Duration, p outbound) {
	var buf bytes.Buffer
	_, err := p.WriteTo(&buf)
	require.NoError(fc.t, err)
	fc.pending = append(fc.pending, scheduledPacket{
		at:   fc.clock.Now().Add(after),
		data: buf.Bytes(),
	})
	slices.SortStableFunc(fc.pending, func(a, b scheduledPacket) int {
		return a.at.Compare(b.at)
	})
}

// deliverRaw schedules raw bytes to arrive immediately.
func (fc *fakeConn) deliverRaw(data []byte) {
	fc.pending = append(
		[]scheduledPacket{{at: fc.clock.Now(), data: data}},
		fc.pending...,
	)
}

// sentOfType returns the written packets of one type, with their send times.
func (fc *fakeConn) sentOfType(
	packetType byte,
) ([]*packets.ControlPacket, []time.Time) {
	var cps []*packets.ControlPacket
	var at []time.Time
	for i, cp := range fc.sent {
		if cp.Type == packetType {
			cps = append(cps, cp)
			at = append(at, fc.sentAt[i])
		}
	}
	return cps, at
}

// brokerResponder answers CONNECT, SUBSCRIBE and PINGREQ like a healthy
// broker.
func brokerResponder(fc *fakeConn, cp *packets.ControlPacket) {
	switch p := cp.Content.(type) {
	case *packets.Connect:
		fc.deliver(0, &packets.Connack{Properties: &packets.Properties{}})
	case *packets.Subscribe:
		reasons := make([]byte, len(p.Subscriptions))
		for i, s := range p.Subscriptions {
			reasons[i] = s.QoS
		}
		fc.deliver(0, &packets.Suback{
			PacketID:   p.PacketID,
			Reasons:    reasons,
			Properties: &packets.Properties{},
		})
	case *packets.Pingreq:
		fc.deliver(0, &packets.Pingresp{})
	}
}

// silentResponder never answers anything.
func silentResponder(*fakeConn, *packets.ControlPacket) {}

func setFakeClock(t *testing.T) *wallclock.Fake {
	clock := wallclock.NewFake(testEpoch)
	t.Cleanup(clock.Set())
	return clock
}

// newTestClient builds a session client whose provider always returns fc and
// which makes a single connection attempt per retry budget.
func newTestClient(
	t *testing.T,
	fc *fakeConn,
	opts ...SessionClientOption,
) *SessionClient {
	client, err := NewSessionClient(
		func(context.Context) (Conn, error) { return fc, nil },
		append([]SessionClientOption{
			WithClientID("disco_test"),
			WithConnectionRetry(&retry.FixedInterval{MaxAttempts: 1}),
		}, opts...)...,
	)
	require.NoError(t, err)
	return client
}

// runUntil runs the client on the test goroutine until the fake clock reaches
// the given offset from the epoch, then stops it.
func runUntil(
	t *testing.T,
	client *SessionClient,
	fc *fakeConn,
	offset time.Duration,
) error {
	fc.horizon = testEpoch.Add(offset)
	fc.onHorizon = func() { require.NoError(t, client.Stop()) }
	return client.Run(context.Background())
}
