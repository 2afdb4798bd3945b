// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package pahov3 provides a session client transport that speaks MQTT 3.1.1
// using the Eclipse Paho MQTT client, for brokers without MQTT v5 support.
package pahov3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Azure/mqttsession"
	"github.com/Azure/mqttsession/internal"
	"github.com/Azure/mqttsession/internal/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type (
	// Transport opens MQTT 3.1.1 connections over TCP or TLS, chosen by the
	// broker address scheme (tcp, mqtt, ssl, tls, mqtts).
	Transport struct {
		// TLSConfig provides the TLS configuration for secure schemes. The
		// zero configuration is used if it is nil.
		TLSConfig mqttsession.TLSConfigProvider

		// DisconnectQuiesce is how long a graceful disconnect waits for
		// in-flight work to complete.
		DisconnectQuiesce time.Duration

		Logger *slog.Logger

		// Replaces the Paho client; used for testing.
		newClient func(*mqtt.ClientOptions) client
	}

	// client is the subset of mqtt.Client used by the transport.
	client interface {
		Connect() mqtt.Token
		Disconnect(quiesce uint)
		Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
		Unsubscribe(topics ...string) mqtt.Token
		Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	}

	connection struct {
		transport *Transport
		address   *url.URL

		// The dialed network connection, handed to Paho on its first
		// connection attempt.
		mu     sync.Mutex
		conn   net.Conn
		client client

		events chan mqttsession.Event
		life   *internal.Background

		closing atomic.Bool
		lost    sync.Once

		log log.Logger
	}

	connackToken interface {
		ReturnCode() byte
		SessionPresent() bool
	}

	subackToken interface {
		Result() map[string]byte
	}
)

const (
	eventBufferSize = 64
	defaultQuiesce  = 250 * time.Millisecond

	// SUBACK failure return code.
	subackFailure byte = 0x80
)

var (
	errConnectionClosed  = errors.New("connection closed")
	errConnectNotStarted = errors.New("CONNECT not sent")
	errAlreadyUsed       = errors.New("network connection already used")

	// CONNACK return codes mapped to their MQTT v5 equivalents.
	connackReasons = map[byte]mqttsession.ReasonCode{
		1: mqttsession.ReasonUnsupportedProtocolVersion,
		2: mqttsession.ReasonClientIdentifierNotValid,
		3: mqttsession.ReasonServerUnavailable,
		4: mqttsession.ReasonBadUserNameOrPassword,
		5: mqttsession.ReasonNotAuthorized,
	}
)

// Open dials the broker. The Paho client is created, and the CONNECT sent, by
// SendConnect, since the connect options are only known then.
func (t *Transport) Open(
	ctx context.Context,
	address *url.URL,
) (mqttsession.Connection, error) {
	conn, err := t.dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return &connection{
		transport: t,
		address:   address,
		conn:      conn,
		events:    make(chan mqttsession.Event, eventBufferSize),
		life:      internal.NewBackground(errConnectionClosed),
		log:       log.Wrap(t.Logger),
	}, nil
}

func (t *Transport) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	switch u.Scheme {
	case "tcp", "mqtt":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", u.Host)

	case "ssl", "tls", "mqtts":
		var cfg *tls.Config
		if t.TLSConfig != nil {
			c, err := t.TLSConfig(ctx)
			if err != nil {
				return nil, err
			}
			cfg = c.Clone()
		}
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.ServerName == "" {
			cfg.ServerName = u.Hostname()
		}
		d := tls.Dialer{Config: cfg}
		return d.DialContext(ctx, "tcp", u.Host)

	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c *connection) SendConnect(
	_ context.Context,
	id mqttsession.OperationID,
	opts *mqttsession.ConnectOptions,
) error {
	if c.life.Closed() {
		return errConnectionClosed
	}

	cfg := mqtt.NewClientOptions().
		AddBroker(c.address.String()).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetKeepAlive(time.Duration(opts.KeepAlive) * time.Second).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetDefaultPublishHandler(c.onMessage).
		SetConnectionLostHandler(c.onConnectionLost).
		SetCustomOpenConnectionFn(c.openConnection)
	if opts.Username != "" {
		cfg.SetUsername(opts.Username)
	}
	if opts.Password != nil {
		cfg.SetPassword(string(opts.Password))
	}

	newClient := c.transport.newClient
	if newClient == nil {
		newClient = func(o *mqtt.ClientOptions) client { return mqtt.NewClient(o) }
	}
	cl := newClient(cfg)

	c.mu.Lock()
	c.client = cl
	c.mu.Unlock()

	c.logPacket("CONNECT", id,
		slog.String("client_id", opts.ClientID),
		slog.Bool("clean_session", opts.CleanSession),
		slog.Int("keep_alive", int(opts.KeepAlive)),
	)
	go c.await(id, cl.Connect(), func(tok mqtt.Token) mqttsession.Event {
		ev := mqttsession.Event{
			Kind:      mqttsession.EventAckReceived,
			Operation: id,
		}
		if ct, ok := tok.(connackToken); ok {
			ev.SessionPresent = ct.SessionPresent()
			if code, ok := connackReasons[ct.ReturnCode()]; ok {
				ev.ReasonCode = code
				return ev
			}
		}
		if tok.Error() != nil {
			ev.ReasonCode = mqttsession.ReasonTransportError
		}
		return ev
	})
	return nil
}

func (c *connection) SendSubscribe(
	_ context.Context,
	id mqttsession.OperationID,
	topic string,
	qos mqttsession.QoS,
) error {
	cl, err := c.active()
	if err != nil {
		return err
	}
	c.logPacket("SUBSCRIBE", id, slog.String("topic", topic))
	go c.await(id, cl.Subscribe(topic, byte(qos), nil), func(tok mqtt.Token) mqttsession.Event {
		code := ackCode(tok)
		if st, ok := tok.(subackToken); ok && code.Succeeded() {
			if granted, ok := st.Result()[topic]; ok && granted >= subackFailure {
				code = mqttsession.ReasonUnspecifiedError
			}
		}
		return mqttsession.Event{
			Kind:       mqttsession.EventAckReceived,
			Operation:  id,
			ReasonCode: code,
		}
	})
	return nil
}

func (c *connection) SendUnsubscribe(
	_ context.Context,
	id mqttsession.OperationID,
	topic string,
) error {
	cl, err := c.active()
	if err != nil {
		return err
	}
	c.logPacket("UNSUBSCRIBE", id, slog.String("topic", topic))
	go c.await(id, cl.Unsubscribe(topic), ackEvent(id, mqttsession.EventAckReceived))
	return nil
}

func (c *connection) SendPublish(
	_ context.Context,
	id mqttsession.OperationID,
	msg *mqttsession.Message,
) error {
	cl, err := c.active()
	if err != nil {
		return err
	}
	c.logPacket("PUBLISH", id,
		slog.String("topic", msg.Topic),
		slog.Int("qos", int(msg.QoS)),
		slog.Int("payload_len", len(msg.Payload)),
	)
	tok := cl.Publish(msg.Topic, byte(msg.QoS), msg.Retain, msg.Payload)

	// QoS 0 is complete on hand-off; only an immediate failure is reported.
	if msg.QoS == mqttsession.QoS0 {
		select {
		case <-tok.Done():
			return tok.Error()
		default:
			return nil
		}
	}

	go c.await(id, tok, ackEvent(id, mqttsession.EventDeliveryComplete))
	return nil
}

func (c *connection) SendDisconnect(
	_ context.Context,
	id mqttsession.OperationID,
) error {
	cl, err := c.active()
	if err != nil {
		return err
	}
	c.closing.Store(true)
	c.logPacket("DISCONNECT", id)

	quiesce := c.transport.DisconnectQuiesce
	if quiesce <= 0 {
		quiesce = defaultQuiesce
	}
	go func() {
		cl.Disconnect(uint(quiesce / time.Millisecond))
		c.emit(mqttsession.Event{
			Kind:      mqttsession.EventAckReceived,
			Operation: id,
		})
	}()
	return nil
}

func (c *connection) Events() <-chan mqttsession.Event {
	return c.events
}

func (c *connection) Done() <-chan struct{} {
	return c.life.Done()
}

// Close closes the network connection without a DISCONNECT.
func (c *connection) Close() error {
	c.closing.Store(true)
	defer c.life.Close()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	cl := c.client
	c.mu.Unlock()

	if cl != nil {
		cl.Disconnect(0)
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}

// openConnection hands the dialed connection to Paho. Paho retries are
// disabled, so it is only ever asked once.
func (c *connection) openConnection(
	*url.URL,
	mqtt.ClientOptions,
) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errAlreadyUsed
	}
	conn := c.conn
	c.conn = nil
	return conn, nil
}

func (c *connection) active() (client, error) {
	if c.life.Closed() {
		return nil, errConnectionClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, errConnectNotStarted
	}
	return c.client, nil
}

// await waits for a Paho token and reports its outcome, unless the connection
// ends first.
func (c *connection) await(
	id mqttsession.OperationID,
	tok mqtt.Token,
	event func(mqtt.Token) mqttsession.Event,
) {
	select {
	case <-tok.Done():
	case <-c.life.Done():
		return
	}
	if err := tok.Error(); err != nil {
		c.log.Log(context.Background(), slog.LevelWarn, err.Error(),
			slog.Uint64("operation_id", uint64(id)),
		)
	}
	c.emit(event(tok))
}

func ackEvent(
	id mqttsession.OperationID,
	kind mqttsession.EventKind,
) func(mqtt.Token) mqttsession.Event {
	return func(tok mqtt.Token) mqttsession.Event {
		return mqttsession.Event{
			Kind:       kind,
			Operation:  id,
			ReasonCode: ackCode(tok),
		}
	}
}

func ackCode(tok mqtt.Token) mqttsession.ReasonCode {
	if tok.Error() != nil {
		return mqttsession.ReasonTransportError
	}
	return mqttsession.ReasonSuccess
}

func (c *connection) emit(ev mqttsession.Event) {
	select {
	case c.events <- ev:
	case <-c.life.Done():
	}
}

func (c *connection) onMessage(_ mqtt.Client, m mqtt.Message) {
	c.emit(mqttsession.Event{
		Kind: mqttsession.EventMessageArrived,
		Message: &mqttsession.Message{
			Topic:     m.Topic(),
			Payload:   m.Payload(),
			QoS:       mqttsession.QoS(m.Qos()),
			Retain:    m.Retained(),
			Duplicate: m.Duplicate(),
		},
	})
}

func (c *connection) onConnectionLost(_ mqtt.Client, err error) {
	c.connectionLost(err)
}

// connectionLost reports the loss once and ends the connection's lifetime. A
// loss caused by our own disconnect or close is not reported.
func (c *connection) connectionLost(cause error) {
	if c.closing.Load() {
		return
	}
	c.lost.Do(func() {
		c.emit(mqttsession.Event{
			Kind:  mqttsession.EventConnectionLost,
			Cause: cause,
		})
		c.life.Close()
	})
}

func (c *connection) logPacket(
	name string,
	id mqttsession.OperationID,
	attrs ...slog.Attr,
) {
	ctx := context.Background()
	if !c.log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	c.log.Log(ctx, slog.LevelDebug, name,
		append([]slog.Attr{slog.Uint64("operation_id", uint64(id))}, attrs...)...,
	)
}
