// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsSubprotocol is the WebSocket subprotocol registered for MQTT.
const wsSubprotocol = "mqtt"

// WebSocketConnection is a ConnectionProvider that connects to an MQTT server
// over a WebSocket at the given ws:// or wss:// URL. The TLS configuration is
// only used for wss:// URLs and may be nil.
func WebSocketConnection(
	url string,
	header http.Header,
	tlsConfigProvider TLSConfigProvider,
) ConnectionProvider {
	return func(ctx context.Context) (Conn, error) {
		var config *tls.Config
		if tlsConfigProvider != nil {
			var err error
			config, err = tlsConfigProvider(ctx)
			if err != nil {
				return nil, &ConnectionError{
					message: "error getting TLS configuration",
					wrapped: err,
				}
			}
		}

		d := websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: config,
			Subprotocols:    []string{wsSubprotocol},
		}
		ws, resp, err := d.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return NewNetConn(newWebSocketConn(ws)), nil
	}
}

// webSocketConn presents binary WebSocket messages as a byte stream. Gorilla
// read errors are permanent, so read deadlines cannot be applied to the
// WebSocket directly; instead a pump copies frames into a pipe whose deadlines
// are recoverable.
type webSocketConn struct {
	ws     *websocket.Conn
	local  net.Conn
	remote net.Conn
	wmu    sync.Mutex
	close  func() error
}

func newWebSocketConn(ws *websocket.Conn) *webSocketConn {
	local, remote := net.Pipe()
	c := &webSocketConn{ws: ws, local: local, remote: remote}
	c.close = sync.OnceValue(func() error {
		err := c.ws.Close()
		_ = c.local.Close()
		_ = c.remote.Close()
		return err
	})
	go c.pump()
	return c
}

func (c *webSocketConn) pump() {
	defer c.remote.Close()
	for {
		typ, r, err := c.ws.NextReader()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if _, err := io.Copy(c.remote, r); err != nil {
			return
		}
	}
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	return c.local.Read(p)
}

// Write sends each call as a single binary message.
func (c *webSocketConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) Close() error {
	return c.close()
}

func (c *webSocketConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *webSocketConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *webSocketConn) SetReadDeadline(t time.Time) error {
	return c.local.SetReadDeadline(t)
}

func (c *webSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
