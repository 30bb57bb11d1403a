// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"fmt"
)

type (
	// Status is the operator-visible state of the session client.
	Status byte

	// StatusEvent is delivered to status handlers on every status change.
	StatusEvent struct {
		Status Status
		// Err is the cause of a StatusFatal event.
		Err error
	}

	// StatusEventHandler is a user-defined callback function used to respond
	// to status changes. It is called synchronously from the session
	// client's goroutine and must not block.
	StatusEventHandler = func(*StatusEvent)
)

const (
	// StatusConnecting is reported while no session is established.
	StatusConnecting Status = iota
	// StatusConnected is reported only after a positive CONNACK.
	StatusConnected
	// StatusFatal is reported when the client cannot make progress without
	// outside intervention.
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Status(%d)", byte(s))
	}
}

// RegisterStatusEventHandler registers a handler for status changes. It
// returns a function to unregister the handler.
func (c *SessionClient) RegisterStatusEventHandler(
	handler StatusEventHandler,
) func() {
	return c.statusHandlers.Register(handler)
}

// RegisterFatalErrorHandler registers a handler that is called in a goroutine
// with each fatal error. It returns a function to unregister the handler.
func (c *SessionClient) RegisterFatalErrorHandler(
	handler func(error),
) func() {
	return c.fatalErrorHandlers.Register(handler)
}

// Status returns the current operator-visible status.
func (c *SessionClient) Status() Status {
	return Status(c.status.Load())
}

// setStatus reports a status change. Repeated non-fatal statuses are
// suppressed; every fatal error is reported. Only called from Run.
func (c *SessionClient) setStatus(ctx context.Context, s Status, err error) {
	prev := Status(c.status.Swap(uint32(s)))
	if c.statusReported && prev == s && s != StatusFatal {
		return
	}
	c.statusReported = true
	c.log.status(ctx, s)

	ev := &StatusEvent{Status: s, Err: err}
	for handler := range c.statusHandlers.All() {
		handler(ev)
	}

	if s == StatusFatal && err != nil {
		c.log.Err(ctx, err)
		for handler := range c.fatalErrorHandlers.All() {
			go handler(err)
		}
	}
}
