// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/eclipse/paho.golang/packets"
)

type (
	// PollResult is the readiness of a connection after a Poll.
	PollResult byte

	// Conn is a byte stream to an MQTT server with a readiness primitive. The
	// session client only uses a Conn from its own goroutine.
	Conn interface {
		io.ReadWriteCloser

		// Poll waits up to timeout for inbound data. A zero timeout checks
		// readiness without waiting. PollError is accompanied by the error
		// that caused it.
		Poll(timeout time.Duration) (PollResult, error)
	}

	// ConnectionProvider is a function that returns a Conn connected to an
	// MQTT server that is ready to read from and write to.
	ConnectionProvider func(context.Context) (Conn, error)

	// NetConn adapts a net.Conn to Conn, implementing Poll with read deadlines
	// over a buffered reader.
	NetConn struct {
		conn net.Conn
		r    *bufio.Reader
	}
)

const (
	PollTimeout PollResult = iota
	PollReadable
	PollHangup
	PollError
)

func (r PollResult) String() string {
	switch r {
	case PollTimeout:
		return "timeout"
	case PollReadable:
		return "readable"
	case PollHangup:
		return "hangup"
	case PollError:
		return "error"
	default:
		return fmt.Sprintf("PollResult(%d)", byte(r))
	}
}

// NewNetConn wraps a connected net.Conn.
func NewNetConn(conn net.Conn) *NetConn {
	return &NetConn{conn: conn, r: bufio.NewReader(conn)}
}

// Read reads buffered inbound bytes.
func (c *NetConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Write sends bytes to the server.
func (c *NetConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close closes the underlying connection.
func (c *NetConn) Close() error {
	return c.conn.Close()
}

// Poll implements Conn. Once data is available, reads of the rest of the packet
// are bounded by a fixed timeout so a stalled server cannot block the caller
// indefinitely.
func (c *NetConn) Poll(timeout time.Duration) (PollResult, error) {
	if c.r.Buffered() == 0 {
		// Socket deadlines are real time; the injectable clock does not apply.
		err := c.conn.SetReadDeadline(time.Now().Add(timeout))
		if err == nil {
			_, err = c.r.Peek(1)
		}
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			return PollTimeout, nil
		case isClosed(err):
			return PollHangup, nil
		default:
			return PollError, err
		}
	}

	err := c.conn.SetReadDeadline(time.Now().Add(packetReadTimeout))
	if err != nil && !isClosed(err) {
		return PollError, err
	}
	return PollReadable, nil
}

// isClosed reports whether err means the peer or the local side closed the
// connection.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port int) ConnectionProvider {
	return func(ctx context.Context) (Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(
			ctx,
			"tcp",
			net.JoinHostPort(hostname, fmt.Sprint(port)),
		)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return NewNetConn(conn), nil
	}
}

// TLSConfigProvider is a function that returns a *tls.Config to be used when
// opening a TLS connection to an MQTT server. See tls.Config for more
// information on TLS configuration options.
type TLSConfigProvider func(context.Context) (*tls.Config, error)

// ConstantTLSConfig is a TLSConfigProvider that returns an unchanging
// *tls.Config.
func ConstantTLSConfig(config *tls.Config) TLSConfigProvider {
	return func(context.Context) (*tls.Config, error) {
		return config, nil
	}
}

// TLSConnection is a ConnectionProvider that connects to an MQTT server with
// TLS over TCP given a TLSConfigProvider.
func TLSConnection(
	hostname string,
	port int,
	tlsConfigProvider TLSConfigProvider,
) ConnectionProvider {
	return func(ctx context.Context) (Conn, error) {
		if tlsConfigProvider == nil {
			// use the zero configuration by default
			tlsConfigProvider = ConstantTLSConfig(nil)
		}

		config, err := tlsConfigProvider(ctx)
		if err != nil {
			return nil, &ConnectionError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}

		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(
			ctx,
			"tcp",
			net.JoinHostPort(hostname, fmt.Sprint(port)),
		)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TLS connection",
				wrapped: err,
			}
		}
		return NewNetConn(packets.NewThreadSafeConn(conn)), nil
	}
}
