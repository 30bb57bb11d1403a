// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// eventHandler reacts to one decoded packet of a connected session. A non-nil
// error ends the session; the handler must have torn it down already.
type eventHandler = func(
	c *SessionClient,
	ctx context.Context,
	s *session,
	ev event,
) error

var eventHandlers = map[eventKind]eventHandler{
	eventConnack:    (*SessionClient).onConnack,
	eventPublish:    (*SessionClient).onPublish,
	eventPuback:     (*SessionClient).onPuback,
	eventPubrec:     (*SessionClient).onPubrec,
	eventPubrel:     (*SessionClient).onPubrel,
	eventPubcomp:    (*SessionClient).onPubcomp,
	eventSuback:     (*SessionClient).onSuback,
	eventPingresp:   (*SessionClient).onPingresp,
	eventDisconnect: (*SessionClient).onDisconnect,
}

// runSession drives a connected session until it ends. It returns nil only
// when the context is done, after a graceful DISCONNECT.
func (c *SessionClient) runSession(ctx context.Context) error {
	s := c.sess
	defer func() {
		c.sess = nil
		c.publisher.disconnected()
		c.metrics.inFlight(0)
	}()

	for {
		if c.stopping(ctx) {
			c.disconnect(ctx, s)
			return nil
		}

		if ev, ok := c.network.Take(); ok && ev == networkLost {
			err := &ConnectionError{
				message: "session closed",
				wrapped: errNetworkLost,
			}
			c.fail(ctx, s, err)
			return err
		}

		now := c.now()
		if s.pingOverdue(now) {
			err := &KeepAliveTimeoutError{KeepAlive: s.keepAlive}
			c.fail(ctx, s, err)
			return err
		}
		if !now.Before(s.deadline()) {
			if err := c.ping(ctx, s, now); err != nil {
				return err
			}
		}

		if err := c.publishTelemetry(ctx, s); err != nil {
			return err
		}

		res, err := s.conn.Poll(c.pollTimeout(s, c.now()))
		switch res {
		case PollTimeout:
			continue
		case PollHangup:
			err := &ConnectionError{message: "connection closed by server"}
			c.fail(ctx, s, err)
			return err
		case PollError:
			err := &ConnectionError{
				message: "error polling connection",
				wrapped: err,
			}
			c.fail(ctx, s, err)
			return err
		}

		ev, err := decodeEvent(s.conn)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) && !perr.Corrupt {
				c.log.Warn(ctx, err)
				continue
			}
			c.fail(ctx, s, err)
			return err
		}
		c.log.Packet(ctx, ev.kind().String(), ev)

		if err := eventHandlers[ev.kind()](c, ctx, s, ev); err != nil {
			return err
		}
	}
}

// pollTimeout bounds the next wait by the keep-alive deadline, an outstanding
// PINGREQ, the next telemetry publish and the maximum poll interval.
func (c *SessionClient) pollTimeout(s *session, now time.Time) time.Duration {
	until := s.deadline()
	if !s.pingSentAt.IsZero() {
		until = minTime(until, s.pingSentAt.Add(s.keepAlive))
	}
	if due := c.publisher.nextDue(); !due.IsZero() {
		until = minTime(until, due)
	}
	return min(max(0, until.Sub(now)), c.options.MaxPollInterval)
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func (c *SessionClient) ping(
	ctx context.Context,
	s *session,
	now time.Time,
) error {
	if err := c.send(ctx, s, "pingreq", buildPingreq()); err != nil {
		return err
	}
	if s.pingSentAt.IsZero() {
		s.pingSentAt = now
	}
	c.metrics.keepAlivePing()
	return nil
}

// send writes one packet and moves the keep-alive deadline. A write failure on an
// established session tears it down immediately.
func (c *SessionClient) send(
	ctx context.Context,
	s *session,
	name string,
	p outbound,
) error {
	c.log.Packet(ctx, name, p)
	if err := writePacket(s.conn, p); err != nil {
		c.fail(ctx, s, err)
		return err
	}
	s.sent(c.now())
	return nil
}

// fail tears down an established session after an error.
func (c *SessionClient) fail(ctx context.Context, s *session, err error) {
	if s.state != StateConnected {
		return
	}
	c.log.disconnected(ctx, err)
	if terr := s.teardown(); terr != nil {
		c.log.Err(ctx, terr)
	}
}

// disconnect ends an established session gracefully.
func (c *SessionClient) disconnect(ctx context.Context, s *session) {
	if s.state != StateConnected {
		return
	}
	p := buildDisconnect(disconnectNormalDisconnection)
	c.log.Packet(ctx, "disconnect", p)
	if err := writePacket(s.conn, p); err != nil {
		c.log.Warn(ctx, err)
	}
	if err := s.teardown(); err != nil {
		c.log.Err(ctx, err)
	}
	c.log.disconnected(ctx, nil)
}

// unmatched logs and discards an acknowledgment with no tracked exchange.
func (c *SessionClient) unmatched(ctx context.Context, err error) {
	c.log.Log(ctx, slog.LevelWarn, err.Error())
	c.metrics.unmatchedAck()
}

func (c *SessionClient) onConnack(
	ctx context.Context,
	_ *session,
	_ event,
) error {
	c.log.Warn(ctx, &ProtocolError{message: "unexpected CONNACK"})
	return nil
}

func (c *SessionClient) onPublish(
	ctx context.Context,
	s *session,
	ev event,
) error {
	pub := ev.(publishEvent)

	reply, deliver := s.acks.received(pub.PacketID, pub.QoS)
	if reply != nil {
		if err := c.send(ctx, s, "ack", reply); err != nil {
			return err
		}
	}
	c.metrics.inFlight(s.acks.len())
	if !deliver {
		c.log.Log(ctx, slog.LevelDebug, "duplicate publish acknowledged",
			slog.Int("packet_id", int(pub.PacketID)),
		)
		return nil
	}

	key, ok := c.route(pub.Topic)
	if !ok || key != commandHandlerKey {
		c.log.Log(ctx, slog.LevelDebug, "ignoring publish on unexpected topic",
			slog.String("topic", pub.Topic),
		)
		return nil
	}
	c.commands.dispatch(ctx, pub.Payload)
	return nil
}

func (c *SessionClient) onPuback(
	ctx context.Context,
	s *session,
	ev event,
) error {
	if err := s.acks.puback(ev.(ackEvent).PacketID); err != nil {
		c.unmatched(ctx, err)
	}
	c.metrics.inFlight(s.acks.len())
	return nil
}

func (c *SessionClient) onPubrec(
	ctx context.Context,
	s *session,
	ev event,
) error {
	ack := ev.(ackEvent)
	reply, err := s.acks.pubrec(ack.PacketID, ack.ReasonCode)
	if err != nil {
		c.unmatched(ctx, err)
		return nil
	}
	if reply != nil {
		return c.send(ctx, s, "pubrel", reply)
	}
	c.metrics.inFlight(s.acks.len())
	return nil
}

func (c *SessionClient) onPubrel(
	ctx context.Context,
	s *session,
	ev event,
) error {
	reply, err := s.acks.pubrel(ev.(ackEvent).PacketID)
	if err != nil {
		c.unmatched(ctx, err)
		return nil
	}
	c.metrics.inFlight(s.acks.len())
	return c.send(ctx, s, "pubcomp", reply)
}

func (c *SessionClient) onPubcomp(
	ctx context.Context,
	s *session,
	ev event,
) error {
	if err := s.acks.pubcomp(ev.(ackEvent).PacketID); err != nil {
		c.unmatched(ctx, err)
	}
	c.metrics.inFlight(s.acks.len())
	return nil
}

func (c *SessionClient) onSuback(
	ctx context.Context,
	s *session,
	ev event,
) error {
	suback := ev.(subackEvent)
	filter, ok := s.pendingSubs[suback.PacketID]
	if !ok {
		c.unmatched(ctx, &unmatchedAckError{
			eventSuback, suback.PacketID, "no pending subscription",
		})
		return nil
	}
	delete(s.pendingSubs, suback.PacketID)
	for _, reason := range suback.Reasons {
		c.log.subscribed(ctx, filter, reason)
	}
	return nil
}

func (*SessionClient) onPingresp(
	_ context.Context,
	s *session,
	_ event,
) error {
	s.pingSentAt = time.Time{}
	return nil
}

func (c *SessionClient) onDisconnect(
	ctx context.Context,
	s *session,
	ev event,
) error {
	err := disconnectErr(ev.(disconnectEvent).ReasonCode)
	c.fail(ctx, s, err)
	return err
}
