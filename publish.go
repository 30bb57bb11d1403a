// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// packetIDs allocates packet identifiers for one session. Identifiers
// increase monotonically, wrap at 16 bits, and skip 0 and any identifier that
// is still in flight.
type packetIDs struct {
	last uint16
}

var errPacketIDsExhausted = errors.New("all packet IDs are in flight")

func (p *packetIDs) next(inUse func(uint16) bool) (uint16, error) {
	for range 1 << 16 {
		p.last++
		if p.last == 0 || inUse(p.last) {
			continue
		}
		return p.last, nil
	}
	return 0, errPacketIDsExhausted
}

// publisher emits the latest telemetry snapshot on a fixed cadence once the
// stabilization window after CONNACK has passed.
type publisher struct {
	topic         string
	qos           byte
	interval      time.Duration
	stabilization time.Duration
	source        DataSource

	// Zero while no session is connected.
	due time.Time
}

// connected schedules the first publish of a new session.
func (p *publisher) connected(connectedAt time.Time) {
	p.due = connectedAt.Add(p.stabilization)
}

func (p *publisher) disconnected() {
	p.due = time.Time{}
}

// nextDue returns when the publisher next needs the loop, or the zero time if
// it is idle.
func (p *publisher) nextDue() time.Time {
	if p.source == nil {
		return time.Time{}
	}
	return p.due
}

// ready consumes the current cycle if it is due. The returned payload is nil
// when no snapshot was available, in which case the cycle is skipped.
func (p *publisher) ready(now time.Time) (payload []byte, due bool, err error) {
	if p.source == nil || p.due.IsZero() || now.Before(p.due) {
		return nil, false, nil
	}
	p.due = now.Add(p.interval)

	snapshot, ok := p.source.LatestSnapshot()
	if !ok {
		return nil, true, nil
	}
	payload, err = json.Marshal(snapshot)
	if err != nil {
		return nil, true, &InvalidArgumentError{
			message: "telemetry snapshot is not serializable",
			wrapped: err,
		}
	}
	return payload, true, nil
}

// publishTelemetry runs one publisher cycle against the connected session. A
// write failure tears the session down before returning.
func (c *SessionClient) publishTelemetry(
	ctx context.Context,
	s *session,
) error {
	if s.state != StateConnected {
		return nil
	}

	now := c.now()
	payload, due, err := c.publisher.ready(now)
	switch {
	case err != nil:
		c.log.Warn(ctx, err)
		return nil
	case !due:
		return nil
	case payload == nil:
		c.log.Log(ctx, slog.LevelDebug, "no telemetry snapshot; skipping cycle")
		return nil
	}

	qos := c.publisher.qos
	var id uint16
	if qos > 0 {
		if id, err = s.ids.next(s.acks.outstanding); err != nil {
			c.log.Warn(ctx, err)
			return nil
		}
	}

	pub := buildPublish(c.publisher.topic, qos, id, payload, jsonContentType)
	if err := c.send(ctx, s, "publish", pub); err != nil {
		return err
	}
	if err := s.acks.sent(id, qos); err != nil {
		c.log.Warn(ctx, err)
	}
	c.metrics.published(qos)
	c.metrics.inFlight(s.acks.len())
	return nil
}
