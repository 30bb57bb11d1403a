// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of the broker session.
type SessionState byte

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("SessionState(%d)", byte(s))
	}
}

var sessionTransitions = map[SessionState][]SessionState{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateConnected, StateDisconnected},
	StateConnected:     {StateDisconnecting},
	StateDisconnecting: {StateDisconnected},
}

// session is the single broker relationship owned by a SessionClient. It is
// only touched from the supervisor goroutine.
type session struct {
	state SessionState
	conn  Conn

	clientID   string
	keepAlive  time.Duration
	margin     time.Duration
	cleanStart bool

	connectedAt time.Time
	lastSent    time.Time
	// Zero when no PINGREQ is awaiting its PINGRESP.
	pingSentAt time.Time

	acks *ackTracker
	ids  packetIDs
	// Topic filters of SUBSCRIBE packets awaiting their SUBACK.
	pendingSubs map[uint16]string
}

func newSession(
	clientID string,
	keepAlive time.Duration,
	margin time.Duration,
	cleanStart bool,
) *session {
	return &session{
		clientID:    clientID,
		keepAlive:   keepAlive,
		margin:      margin,
		cleanStart:  cleanStart,
		acks:        newAckTracker(),
		pendingSubs: map[uint16]string{},
	}
}

func (s *session) transition(to SessionState) error {
	for _, allowed := range sessionTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return &StateTransitionError{From: s.state, To: to}
}

// begin starts a connect attempt on a freshly opened connection, discarding
// anything left from the previous session.
func (s *session) begin(conn Conn, now time.Time) error {
	if err := s.transition(StateConnecting); err != nil {
		return err
	}
	s.reset()
	s.conn = conn
	s.lastSent = now
	return nil
}

// established records a positive CONNACK. A server keep-alive override
// replaces the requested interval; a margin that would leave no time before
// the deadline falls back to a tenth of the new interval.
func (s *session) established(
	now time.Time,
	serverKeepAlive time.Duration,
) error {
	if err := s.transition(StateConnected); err != nil {
		return err
	}
	s.acks.reset()
	s.ids = packetIDs{}
	s.connectedAt = now
	if serverKeepAlive > 0 {
		s.keepAlive = serverKeepAlive
		if s.margin >= s.keepAlive {
			s.margin = s.keepAlive / 10
		}
	}
	return nil
}

// abort ends a connect attempt that never reached Connected.
func (s *session) abort() error {
	if err := s.transition(StateDisconnected); err != nil {
		return err
	}
	s.closeConn()
	s.reset()
	return nil
}

// teardown ends an established session.
func (s *session) teardown() error {
	if err := s.transition(StateDisconnecting); err != nil {
		return err
	}
	s.closeConn()
	if err := s.transition(StateDisconnected); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *session) closeConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *session) reset() {
	s.acks.reset()
	s.ids = packetIDs{}
	clear(s.pendingSubs)
	s.connectedAt = time.Time{}
	s.pingSentAt = time.Time{}
}

// sent records a successfully written packet. Only outbound traffic keeps
// the connection alive from the server's point of view, so received packets
// do not move the deadline.
func (s *session) sent(now time.Time) {
	s.lastSent = now
}

// deadline is the latest time by which a packet must be sent to keep the
// connection alive.
func (s *session) deadline() time.Time {
	return s.lastSent.Add(s.keepAlive - s.margin)
}

// pingOverdue reports whether an outstanding PINGREQ went unanswered for a
// full keep-alive interval.
func (s *session) pingOverdue(now time.Time) bool {
	return !s.pingSentAt.IsZero() && !now.Before(s.pingSentAt.Add(s.keepAlive))
}
