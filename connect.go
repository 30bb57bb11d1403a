// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/disco-iot/mqtt/internal/wallclock"
)

// connect runs one retry budget of connection attempts.
func (c *SessionClient) connect(ctx context.Context) error {
	c.setStatus(ctx, StatusConnecting, nil)
	return c.options.ConnectionRetry.Start(
		ctx,
		"connect",
		func(ctx context.Context) (bool, error) {
			err := c.attemptConnect(ctx)
			c.metrics.connectAttempt(err)
			if err == nil {
				return false, nil
			}
			return !isFatal(err) && ctx.Err() == nil, err
		},
	)
}

// attemptConnect opens a connection, sends CONNECT and waits for CONNACK. On
// success the session is Connected and subscribed. On failure it sends a
// best-effort DISCONNECT and closes the connection, so no half-open session
// is ever left behind.
func (c *SessionClient) attemptConnect(ctx context.Context) error {
	conn, err := c.connectionProvider(ctx)
	if err != nil {
		return err
	}

	o := &c.options
	s := newSession(o.ClientID, o.KeepAlive, o.KeepAliveMargin, o.CleanStart)
	if err := s.begin(conn, c.now()); err != nil {
		_ = conn.Close()
		return err
	}

	c.log.connecting(ctx, s.clientID)
	connect := buildConnect(
		s.clientID,
		s.keepAlive,
		s.cleanStart,
		o.Username,
		o.Password,
	)
	if err := c.send(ctx, s, "connect", connect); err != nil {
		c.abortAttempt(ctx, s)
		return err
	}

	connack, err := c.awaitConnack(ctx, s)
	if err != nil {
		c.abortAttempt(ctx, s)
		return err
	}
	c.log.Packet(ctx, "connack", connack)

	if connack.ReasonCode != connackSuccess {
		c.abortAttempt(ctx, s)
		if isFatalConnackReasonCode(connack.ReasonCode) {
			return &FatalConnackError{ReasonCode: connack.ReasonCode}
		}
		return &ConnackError{ReasonCode: connack.ReasonCode}
	}

	if err := s.established(c.now(), connack.ServerKeepAlive); err != nil {
		c.abortAttempt(ctx, s)
		return err
	}
	c.sess = s
	c.publisher.connected(s.connectedAt)
	c.metrics.sessionEstablished()
	c.metrics.inFlight(0)

	// A failed SUBSCRIBE tears the established session down inside send.
	if err := c.subscribe(ctx, s); err != nil {
		c.sess = nil
		c.publisher.disconnected()
		return err
	}

	c.log.connected(ctx, connack.SessionPresent, s.keepAlive)
	c.setStatus(ctx, StatusConnected, nil)
	return nil
}

// awaitConnack polls for the first packet from the server, bounded by the
// connect timeout.
func (c *SessionClient) awaitConnack(
	ctx context.Context,
	s *session,
) (connackEvent, error) {
	deadline := c.now().Add(c.options.ConnectTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return connackEvent{}, err
		}

		remaining := wallclock.Until(deadline)
		if remaining == 0 {
			return connackEvent{}, &ConnectionError{
				message: "timed out waiting for CONNACK",
			}
		}

		res, err := s.conn.Poll(min(remaining, c.options.MaxPollInterval))
		switch res {
		case PollTimeout:
			continue
		case PollHangup:
			return connackEvent{}, &ConnectionError{
				message: "connection closed before CONNACK",
			}
		case PollError:
			return connackEvent{}, &ConnectionError{
				message: "error polling connection",
				wrapped: err,
			}
		}

		ev, err := decodeEvent(s.conn)
		if err != nil {
			return connackEvent{}, err
		}
		switch e := ev.(type) {
		case connackEvent:
			return e, nil
		case disconnectEvent:
			c.log.Packet(ctx, "disconnect", e)
			return connackEvent{}, disconnectErr(e.ReasonCode)
		default:
			return connackEvent{}, &ProtocolError{
				message: "expected CONNACK, received " + ev.kind().String(),
			}
		}
	}
}

// abortAttempt ends a connect attempt that did not produce a session.
func (c *SessionClient) abortAttempt(ctx context.Context, s *session) {
	if s.state != StateConnecting {
		return
	}
	if s.conn != nil {
		disconnect := buildDisconnect(disconnectUnspecifiedError)
		c.log.Packet(ctx, "disconnect", disconnect)
		_ = writePacket(s.conn, disconnect)
	}
	if err := s.abort(); err != nil {
		c.log.Err(ctx, err)
	}
}

func disconnectErr(reasonCode byte) error {
	if isFatalDisconnectReasonCode(reasonCode) {
		return &FatalDisconnectError{ReasonCode: reasonCode}
	}
	return &DisconnectError{ReasonCode: reasonCode}
}
