// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"fmt"
	"maps"
	"slices"
)

type (
	// Direction says which side originated an in-flight PUBLISH.
	Direction byte

	// QoS2State is the progress of a QoS 2 exchange.
	QoS2State byte

	// InFlightMessage is a PUBLISH whose acknowledgment exchange has not yet
	// completed.
	InFlightMessage struct {
		PacketID  uint16
		QoS       byte
		Direction Direction
		// Only meaningful for QoS 2.
		State QoS2State
	}

	ackKey struct {
		direction Direction
		packetID  uint16
	}

	// ackTracker holds the in-flight messages of one session. Methods return
	// the acknowledgment the caller must send, if any; the tracker itself
	// never writes to the connection.
	ackTracker struct {
		entries map[ackKey]*InFlightMessage
	}

	// unmatchedAckError describes an acknowledgment with no tracked exchange.
	unmatchedAckError struct {
		ack      eventKind
		packetID uint16
		reason   string
	}
)

const (
	Outbound Direction = iota
	Inbound
)

const (
	PublishSent QoS2State = iota
	ReceivedAckGiven
	ReleaseSent
	Complete
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

func (s QoS2State) String() string {
	switch s {
	case PublishSent:
		return "PublishSent"
	case ReceivedAckGiven:
		return "ReceivedAckGiven"
	case ReleaseSent:
		return "ReleaseSent"
	case Complete:
		return "Complete"
	default:
		return fmt.Sprintf("QoS2State(%d)", byte(s))
	}
}

func (e *unmatchedAckError) Error() string {
	return fmt.Sprintf(
		"discarding %s for packet ID %d: %s",
		e.ack,
		e.packetID,
		e.reason,
	)
}

func newAckTracker() *ackTracker {
	return &ackTracker{entries: map[ackKey]*InFlightMessage{}}
}

// reset discards every in-flight exchange.
func (t *ackTracker) reset() {
	clear(t.entries)
}

func (t *ackTracker) len() int {
	return len(t.entries)
}

// outstanding reports whether an outbound exchange holds the packet ID.
func (t *ackTracker) outstanding(packetID uint16) bool {
	_, ok := t.entries[ackKey{Outbound, packetID}]
	return ok
}

// snapshot returns copies of the in-flight messages ordered by direction and
// packet ID.
func (t *ackTracker) snapshot() []InFlightMessage {
	keys := slices.SortedFunc(maps.Keys(t.entries), func(a, b ackKey) int {
		if a.direction != b.direction {
			return int(a.direction) - int(b.direction)
		}
		return int(a.packetID) - int(b.packetID)
	})
	msgs := make([]InFlightMessage, len(keys))
	for i, k := range keys {
		msgs[i] = *t.entries[k]
	}
	return msgs
}

// sent records an outbound PUBLISH. QoS 0 is not tracked.
func (t *ackTracker) sent(packetID uint16, qos byte) error {
	if qos == 0 {
		return nil
	}
	key := ackKey{Outbound, packetID}
	if _, ok := t.entries[key]; ok {
		return fmt.Errorf("packet ID %d is already in flight", packetID)
	}
	t.entries[key] = &InFlightMessage{
		PacketID:  packetID,
		QoS:       qos,
		Direction: Outbound,
		State:     PublishSent,
	}
	return nil
}

// received handles an inbound PUBLISH. It returns the acknowledgment to send
// immediately and whether the message should be delivered. A redelivered QoS 2
// message is acknowledged again but not delivered twice.
func (t *ackTracker) received(
	packetID uint16,
	qos byte,
) (reply outbound, deliver bool) {
	switch qos {
	case 0:
		return nil, true
	case 1:
		return buildPuback(packetID), true
	}

	key := ackKey{Inbound, packetID}
	if _, ok := t.entries[key]; ok {
		return buildPubrec(packetID), false
	}
	t.entries[key] = &InFlightMessage{
		PacketID:  packetID,
		QoS:       2,
		Direction: Inbound,
		State:     ReceivedAckGiven,
	}
	return buildPubrec(packetID), true
}

// puback completes an outbound QoS 1 exchange.
func (t *ackTracker) puback(packetID uint16) error {
	key := ackKey{Outbound, packetID}
	msg, ok := t.entries[key]
	switch {
	case !ok:
		return &unmatchedAckError{eventPuback, packetID, "not in flight"}
	case msg.QoS != 1:
		return &unmatchedAckError{eventPuback, packetID, "not a QoS 1 message"}
	}
	delete(t.entries, key)
	return nil
}

// pubrec advances an outbound QoS 2 exchange, returning the PUBREL to send. A
// PUBREC with an error reason code ends the exchange without a release.
func (t *ackTracker) pubrec(
	packetID uint16,
	reasonCode byte,
) (outbound, error) {
	key := ackKey{Outbound, packetID}
	msg, ok := t.entries[key]
	switch {
	case !ok:
		return nil, &unmatchedAckError{eventPubrec, packetID, "not in flight"}
	case msg.QoS != 2:
		return nil, &unmatchedAckError{
			eventPubrec, packetID, "not a QoS 2 message",
		}
	case msg.State != PublishSent:
		return nil, &unmatchedAckError{
			eventPubrec, packetID, "release already sent",
		}
	case reasonCode >= 0x80:
		delete(t.entries, key)
		return nil, nil
	}
	msg.State = ReleaseSent
	return buildPubrel(packetID), nil
}

// pubcomp completes an outbound QoS 2 exchange.
func (t *ackTracker) pubcomp(packetID uint16) error {
	key := ackKey{Outbound, packetID}
	msg, ok := t.entries[key]
	switch {
	case !ok:
		return &unmatchedAckError{eventPubcomp, packetID, "not in flight"}
	case msg.State != ReleaseSent:
		return &unmatchedAckError{eventPubcomp, packetID, "release not sent"}
	}
	msg.State = Complete
	delete(t.entries, key)
	return nil
}

// pubrel completes an inbound QoS 2 exchange, returning the PUBCOMP to send.
func (t *ackTracker) pubrel(packetID uint16) (outbound, error) {
	key := ackKey{Inbound, packetID}
	msg, ok := t.entries[key]
	if !ok {
		return nil, &unmatchedAckError{eventPubrel, packetID, "not in flight"}
	}
	msg.State = Complete
	delete(t.entries, key)
	return buildPubcomp(packetID), nil
}
