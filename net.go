// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

type (
	// TLSConfigProvider is a function that returns a *tls.Config to be used
	// when opening a TLS connection to an MQTT server. See tls.Config for more
	// information on TLS configuration options.
	TLSConfigProvider func(context.Context) (*tls.Config, error)

	// webSocketConn adapts a WebSocket connection carrying MQTT in binary
	// frames to a net.Conn.
	webSocketConn struct {
		*websocket.Conn
		mu     sync.Mutex
		reader io.Reader
	}
)

// ConstantTLSConfig is a TLSConfigProvider that returns an unchanging
// *tls.Config. This can be used if the TLS configuration does not need to be
// updated between network connections to the MQTT server.
func ConstantTLSConfig(config *tls.Config) TLSConfigProvider {
	return func(context.Context) (*tls.Config, error) {
		return config, nil
	}
}

// dial opens the network connection for a broker address. The returned
// net.Conn is safe for concurrent writes.
func dial(
	ctx context.Context,
	address *url.URL,
	tlsConfig TLSConfigProvider,
) (net.Conn, error) {
	switch address.Scheme {
	case "tcp", "mqtt":
		return dialTCP(ctx, address.Host)
	case "ssl", "tls", "mqtts":
		config, err := resolveTLS(ctx, tlsConfig, address)
		if err != nil {
			return nil, err
		}
		return dialTLS(ctx, address.Host, config)
	case "ws":
		return dialWebSocket(ctx, address, nil)
	case "wss":
		config, err := resolveTLS(ctx, tlsConfig, address)
		if err != nil {
			return nil, err
		}
		return dialWebSocket(ctx, address, config)
	default:
		return nil, &ConnectionError{
			message: "unsupported scheme " + address.Scheme,
		}
	}
}

func dialTCP(ctx context.Context, host string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, &ConnectionError{
			message: "error opening TCP connection",
			wrapped: err,
		}
	}
	return packets.NewThreadSafeConn(conn), nil
}

func dialTLS(
	ctx context.Context,
	host string,
	config *tls.Config,
) (net.Conn, error) {
	d := tls.Dialer{Config: config}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, &ConnectionError{
			message: "error opening TLS connection",
			wrapped: err,
		}
	}
	return packets.NewThreadSafeConn(conn), nil
}

func dialWebSocket(
	ctx context.Context,
	address *url.URL,
	config *tls.Config,
) (net.Conn, error) {
	u := *address
	if u.Path == "" {
		u.Path = "/mqtt"
	}

	d := websocket.Dialer{
		Subprotocols:     []string{"mqtt"},
		TLSClientConfig:  config,
		HandshakeTimeout: 30 * time.Second,
	}
	conn, res, err := d.DialContext(ctx, u.String(), nil)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		return nil, &ConnectionError{
			message: "error opening WebSocket connection",
			wrapped: err,
		}
	}
	return packets.NewThreadSafeConn(&webSocketConn{Conn: conn}), nil
}

func resolveTLS(
	ctx context.Context,
	provider TLSConfigProvider,
	address *url.URL,
) (*tls.Config, error) {
	var config *tls.Config
	if provider != nil {
		var err error
		config, err = provider(ctx)
		if err != nil {
			return nil, &ConnectionError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}
	}

	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		config = config.Clone()
	}
	if config.ServerName == "" {
		config.ServerName = address.Hostname()
	}
	return config, nil
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
