// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/eclipse/paho.golang/packets"
)

type (
	// eventKind tags the decoded inbound packet variants the run loop routes.
	eventKind byte

	// event is a decoded inbound packet.
	event interface {
		kind() eventKind
	}

	// Event fields are exported so the packet logger can reflect over them.
	connackEvent struct {
		ReasonCode     byte
		SessionPresent bool
		// Zero when the server did not override the requested keep-alive.
		ServerKeepAlive time.Duration
	}

	publishEvent struct {
		Topic     string
		Payload   []byte
		PacketID  uint16
		QoS       byte
		Duplicate bool
		Retain    bool
	}

	// ackEvent carries PUBACK, PUBREC, PUBREL and PUBCOMP.
	ackEvent struct {
		Ack        eventKind
		PacketID   uint16
		ReasonCode byte
	}

	subackEvent struct {
		PacketID uint16
		Reasons  []byte
	}

	pingrespEvent struct{}

	disconnectEvent struct {
		ReasonCode   byte
		ReasonString string
	}

	// outbound is any packet the session client writes.
	outbound interface {
		WriteTo(io.Writer) (int64, error)
	}
)

const (
	eventConnack eventKind = iota + 1
	eventPublish
	eventPuback
	eventPubrec
	eventPubrel
	eventPubcomp
	eventSuback
	eventPingresp
	eventDisconnect
)

func (k eventKind) String() string {
	switch k {
	case eventConnack:
		return "CONNACK"
	case eventPublish:
		return "PUBLISH"
	case eventPuback:
		return "PUBACK"
	case eventPubrec:
		return "PUBREC"
	case eventPubrel:
		return "PUBREL"
	case eventPubcomp:
		return "PUBCOMP"
	case eventSuback:
		return "SUBACK"
	case eventPingresp:
		return "PINGRESP"
	case eventDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("eventKind(%d)", byte(k))
	}
}

func (connackEvent) kind() eventKind    { return eventConnack }
func (publishEvent) kind() eventKind    { return eventPublish }
func (e ackEvent) kind() eventKind      { return e.Ack }
func (subackEvent) kind() eventKind     { return eventSuback }
func (pingrespEvent) kind() eventKind   { return eventPingresp }
func (disconnectEvent) kind() eventKind { return eventDisconnect }

var packetTypeNames = [...]string{
	"RESERVED", "CONNECT", "CONNACK", "PUBLISH", "PUBACK", "PUBREC",
	"PUBREL", "PUBCOMP", "SUBSCRIBE", "SUBACK", "UNSUBSCRIBE", "UNSUBACK",
	"PINGREQ", "PINGRESP", "DISCONNECT", "AUTH",
}

func packetTypeName(t byte) string {
	if int(t) < len(packetTypeNames) {
		return packetTypeNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", t)
}

// decodeEvent reads exactly one control packet from r. Transport failures are
// returned as *ConnectionError; malformed bytes as a corrupt *ProtocolError;
// well-formed packets a client should never receive as a non-corrupt
// *ProtocolError.
func decodeEvent(r io.Reader) (event, error) {
	cp, err := packets.ReadPacket(r)
	if err != nil {
		if isTransportError(err) {
			return nil, &ConnectionError{
				message: "error reading packet",
				wrapped: err,
			}
		}
		return nil, &ProtocolError{
			Corrupt: true,
			message: "malformed packet",
			wrapped: err,
		}
	}

	switch p := cp.Content.(type) {
	case *packets.Connack:
		e := connackEvent{
			ReasonCode:     p.ReasonCode,
			SessionPresent: p.SessionPresent,
		}
		if p.Properties != nil && p.Properties.ServerKeepAlive != nil {
			e.ServerKeepAlive = time.Duration(
				*p.Properties.ServerKeepAlive,
			) * time.Second
		}
		return e, nil

	case *packets.Publish:
		return publishEvent{
			Topic:     p.Topic,
			Payload:   p.Payload,
			PacketID:  p.PacketID,
			QoS:       p.QoS,
			Duplicate: p.Duplicate,
			Retain:    p.Retain,
		}, nil

	case *packets.Puback:
		return ackEvent{eventPuback, p.PacketID, p.ReasonCode}, nil
	case *packets.Pubrec:
		return ackEvent{eventPubrec, p.PacketID, p.ReasonCode}, nil
	case *packets.Pubrel:
		return ackEvent{eventPubrel, p.PacketID, p.ReasonCode}, nil
	case *packets.Pubcomp:
		return ackEvent{eventPubcomp, p.PacketID, p.ReasonCode}, nil

	case *packets.Suback:
		return subackEvent{PacketID: p.PacketID, Reasons: p.Reasons}, nil

	case *packets.Pingresp:
		return pingrespEvent{}, nil

	case *packets.Disconnect:
		e := disconnectEvent{ReasonCode: p.ReasonCode}
		if p.Properties != nil {
			e.ReasonString = p.Properties.ReasonString
		}
		return e, nil

	default:
		return nil, &ProtocolError{
			PacketType: cp.Type,
			message:    "unexpected packet from server",
		}
	}
}

func isTransportError(err error) bool {
	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &netErr)
}

// writePacket encodes p and sends it with a single write, so that
// message-oriented transports receive exactly one packet per message.
func writePacket(w io.Writer, p outbound) error {
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return &ProtocolError{
			message: "error encoding packet",
			wrapped: err,
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return &ConnectionError{
			message: "error writing packet",
			wrapped: err,
		}
	}
	return nil
}

func buildConnect(
	clientID string,
	keepAlive time.Duration,
	cleanStart bool,
	username string,
	password []byte,
) *packets.Connect {
	p := &packets.Connect{
		ProtocolName:    "MQTT",
		ProtocolVersion: 5,
		ClientID:        clientID,
		KeepAlive:       uint16(keepAlive / time.Second),
		CleanStart:      cleanStart,
		Properties:      &packets.Properties{},
	}
	if username != "" {
		p.UsernameFlag = true
		p.Username = username
	}
	if password != nil {
		p.PasswordFlag = true
		p.Password = password
	}
	return p
}

func buildPublish(
	topic string,
	qos byte,
	packetID uint16,
	payload []byte,
	contentType string,
) *packets.Publish {
	p := &packets.Publish{
		Topic:      topic,
		QoS:        qos,
		Payload:    payload,
		Properties: &packets.Properties{},
	}
	if qos > 0 {
		p.PacketID = packetID
	}
	if contentType != "" {
		utf8 := byte(1)
		p.Properties.ContentType = contentType
		p.Properties.PayloadFormat = &utf8
	}
	return p
}

func buildSubscribe(packetID uint16, subs []Subscription) *packets.Subscribe {
	opts := make([]packets.SubOptions, len(subs))
	for i, s := range subs {
		opts[i] = packets.SubOptions{Topic: s.TopicFilter, QoS: s.QoS}
	}
	return &packets.Subscribe{
		PacketID:      packetID,
		Subscriptions: opts,
		Properties:    &packets.Properties{},
	}
}

func buildPuback(packetID uint16) *packets.Puback {
	return &packets.Puback{
		PacketID:   packetID,
		Properties: &packets.Properties{},
	}
}

func buildPubrec(packetID uint16) *packets.Pubrec {
	return &packets.Pubrec{
		PacketID:   packetID,
		Properties: &packets.Properties{},
	}
}

func buildPubrel(packetID uint16) *packets.Pubrel {
	return &packets.Pubrel{
		PacketID:   packetID,
		Properties: &packets.Properties{},
	}
}

func buildPubcomp(packetID uint16) *packets.Pubcomp {
	return &packets.Pubcomp{
		PacketID:   packetID,
		Properties: &packets.Properties{},
	}
}

func buildPingreq() *packets.Pingreq {
	return &packets.Pingreq{}
}

func buildDisconnect(reasonCode byte) *packets.Disconnect {
	return &packets.Disconnect{
		ReasonCode: reasonCode,
		Properties: &packets.Properties{},
	}
}
