// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"fmt"
	"log/slog"
	"time"
)

// ClientState indicates the current state of the session client.
type ClientState byte

const (
	// The session client has not yet been started.
	NotStarted ClientState = iota

	// The session client is running its supervisor loop.
	Started

	// The session client has been stopped by the user or terminated due to a
	// fatal error.
	ShutDown
)

// ClientStateError is returned when the operation cannot proceed due to the
// state of the session client.
type ClientStateError struct {
	State ClientState
}

func (e *ClientStateError) Error() string {
	switch e.State {
	case NotStarted:
		return "the session client has not yet been started"
	case Started:
		return "the session client has already been started"
	case ShutDown:
		return "the session client has been shut down"
	default:
		// It should not be possible to get here.
		return ""
	}
}

// StateTransitionError is returned when a session lifecycle transition is not
// permitted from the current state. It indicates a bug rather than a network
// condition.
type StateTransitionError struct {
	From SessionState
	To   SessionState
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition from %s to %s", e.From, e.To)
}

// DisconnectError indicates that the session client received a DISCONNECT
// packet from the server with a reason code that is not deemed to be fatal.
// The session is torn down and the supervisor reconnects.
type DisconnectError struct {
	ReasonCode byte
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with reason code %x",
		e.ReasonCode,
	)
}

func (e *DisconnectError) Attrs() []slog.Attr {
	return []slog.Attr{slog.Int("reason_code", int(e.ReasonCode))}
}

// FatalDisconnectError indicates that the session client has terminated due
// to receiving a DISCONNECT packet from the server with a reason code that
// is deemed to be fatal.
type FatalDisconnectError struct {
	ReasonCode byte
}

func (e *FatalDisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with fatal reason code %x",
		e.ReasonCode,
	)
}

func (e *FatalDisconnectError) Attrs() []slog.Attr {
	return []slog.Attr{slog.Int("reason_code", int(e.ReasonCode))}
}

// ConnectionError indicates an issue with the network connection to the MQTT
// server, either while opening it or while using it. It may wrap an underlying
// error using Go standard error wrapping.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// ConnackError indicates that the session client received a CONNACK with a
// reason code that indicates an error but is not deemed to be fatal. It may
// appear as a fatal error if it is the final error returned once the session
// client has exhausted its connection retries.
type ConnackError struct {
	ReasonCode byte
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with error reason code %x",
		e.ReasonCode,
	)
}

// FatalConnackError indicates that the session client has terminated due to
// receiving a CONNACK with a reason code that is deemed to be fatal.
type FatalConnackError struct {
	ReasonCode byte
}

func (e *FatalConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with fatal reason code %x",
		e.ReasonCode,
	)
}

// KeepAliveTimeoutError indicates that the server did not answer a PINGREQ
// within a full keep-alive interval.
type KeepAliveTimeoutError struct {
	KeepAlive time.Duration
}

func (e *KeepAliveTimeoutError) Error() string {
	return fmt.Sprintf("no PINGRESP received within %s", e.KeepAlive)
}

// ProtocolError indicates an inbound packet that could not be handled. When
// Corrupt is set the byte stream can no longer be trusted and the session is
// torn down; otherwise the packet is logged and discarded.
type ProtocolError struct {
	Corrupt    bool
	PacketType byte
	wrapped    error
	message    string
}

func (e *ProtocolError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ProtocolError) Unwrap() error {
	return e.wrapped
}

func (e *ProtocolError) Attrs() []slog.Attr {
	attrs := []slog.Attr{slog.Bool("corrupt", e.Corrupt)}
	if e.PacketType != 0 {
		attrs = append(attrs,
			slog.String("packet_type", packetTypeName(e.PacketType)),
		)
	}
	return attrs
}

// RetryExhaustedError indicates that every connection attempt of a retry
// budget failed. The session client reports it as fatal and waits for the
// network layer to signal restored connectivity before trying again.
type RetryExhaustedError struct {
	Attempts uint64
	wrapped  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf(
		"connection failed after %d attempts: %v",
		e.Attempts,
		e.wrapped,
	)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.wrapped
}

// InvalidArgumentError indicates that the user has provided an invalid value
// for an option. It may wrap an underlying error using Go standard error
// wrapping.
type InvalidArgumentError struct {
	wrapped error
	message string
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}
