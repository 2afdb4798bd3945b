// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/Azure/mqttsession/internal"
	"github.com/Azure/mqttsession/internal/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/eclipse/paho.golang/paho/session/state"
)

type (
	// PahoTransport is the default Transport. It speaks MQTT v5 using the
	// Eclipse Paho client over TCP, TLS, or WebSocket, chosen by the broker
	// address scheme (tcp, mqtt, ssl, tls, mqtts, ws, wss).
	PahoTransport struct {
		// TLSConfig provides the TLS configuration for secure schemes. The
		// zero configuration is used if it is nil.
		TLSConfig TLSConfigProvider

		Logger *slog.Logger

		// Replaces the Paho client; used for testing.
		newClient func(paho.ClientConfig) pahoClient
	}

	// pahoClient is the subset of the Paho client used by the transport.
	pahoClient interface {
		Connect(context.Context, *paho.Connect) (*paho.Connack, error)
		Disconnect(*paho.Disconnect) error
		Subscribe(context.Context, *paho.Subscribe) (*paho.Suback, error)
		Unsubscribe(context.Context, *paho.Unsubscribe) (*paho.Unsuback, error)
		Publish(context.Context, *paho.Publish) (*paho.PublishResponse, error)
		AddOnPublishReceived(func(paho.PublishReceived) (bool, error)) func()
	}

	pahoConnection struct {
		client pahoClient
		conn   net.Conn
		events chan Event

		// Lifetime of the connection; in-flight requests are cancelled when
		// it is closed.
		life *internal.Background

		// Set once a disconnect was requested, so that the resulting close
		// is not reported as a connection loss.
		closing atomic.Bool
		lost    sync.Once

		log logger
	}
)

var errConnectionClosed = errors.New("connection closed")

// Open dials the broker and prepares a Paho client on the connection. The
// CONNECT is not sent until SendConnect.
func (t *PahoTransport) Open(
	ctx context.Context,
	address *url.URL,
) (Connection, error) {
	conn, err := dial(ctx, address, t.TLSConfig)
	if err != nil {
		return nil, err
	}

	c := &pahoConnection{
		conn:   conn,
		events: make(chan Event, eventBufferSize),
		life:   internal.NewBackground(errConnectionClosed),
		log:    logger{log.Wrap(t.Logger)},
	}

	newClient := t.newClient
	if newClient == nil {
		newClient = func(cfg paho.ClientConfig) pahoClient {
			return paho.NewClient(cfg)
		}
	}

	c.client = newClient(paho.ClientConfig{
		Conn:               conn,
		Session:            state.NewInMemory(),
		OnClientError:      c.onClientError,
		OnServerDisconnect: c.onServerDisconnect,
	})
	c.client.AddOnPublishReceived(c.onPublishReceived)
	return c, nil
}

func (c *pahoConnection) SendConnect(
	ctx context.Context,
	id OperationID,
	opts *ConnectOptions,
) error {
	packet := buildConnect(opts)
	return c.request(ctx, connectPacket, packet, func(ctx context.Context) {
		res, err := c.client.Connect(ctx, packet)
		code, err := connErr.translate(res, err)
		c.logResult(ctx, id, err)
		c.emit(Event{
			Kind:           EventAckReceived,
			Operation:      id,
			ReasonCode:     code,
			SessionPresent: res != nil && res.SessionPresent,
		})
	})
}

func (c *pahoConnection) SendSubscribe(
	ctx context.Context,
	id OperationID,
	topic string,
	qos QoS,
) error {
	packet := buildSubscribe(topic, qos)
	return c.request(ctx, subscribePacket, packet, func(ctx context.Context) {
		res, err := c.client.Subscribe(ctx, packet)
		code, err := subErr.translate(res, err)
		c.logResult(ctx, id, err)
		c.ack(id, code)
	})
}

func (c *pahoConnection) SendUnsubscribe(
	ctx context.Context,
	id OperationID,
	topic string,
) error {
	packet := buildUnsubscribe(topic)
	return c.request(ctx, unsubscribePacket, packet, func(ctx context.Context) {
		res, err := c.client.Unsubscribe(ctx, packet)
		code, err := unsubErr.translate(res, err)
		c.logResult(ctx, id, err)
		c.ack(id, code)
	})
}

func (c *pahoConnection) SendPublish(
	ctx context.Context,
	id OperationID,
	msg *Message,
) error {
	packet := buildPublish(msg)

	// QoS 0 completes on hand-off, so send it inline.
	if msg.QoS == QoS0 {
		if c.life.Closed() {
			return errConnectionClosed
		}
		c.log.Packet(ctx, publishPacket, packet)
		res, err := c.client.Publish(ctx, packet)
		// Paho may return (nil, nil) for QoS 0.
		if res == nil && err == nil {
			return nil
		}
		_, err = pubErr.translate(res, err)
		return err
	}

	return c.request(ctx, publishPacket, packet, func(ctx context.Context) {
		res, err := c.client.Publish(ctx, packet)
		code, err := pubErr.translate(res, err)
		c.logResult(ctx, id, err)
		c.emit(Event{
			Kind:       EventDeliveryComplete,
			Operation:  id,
			ReasonCode: code,
		})
	})
}

func (c *pahoConnection) SendDisconnect(
	ctx context.Context,
	id OperationID,
) error {
	packet := buildDisconnect()
	c.closing.Store(true)
	return c.request(ctx, disconnectPacket, packet, func(ctx context.Context) {
		code := ReasonSuccess
		if err := c.client.Disconnect(packet); err != nil {
			code = ReasonTransportError
			c.logResult(ctx, id, err)
		}
		c.ack(id, code)
	})
}

func (c *pahoConnection) Events() <-chan Event {
	return c.events
}

func (c *pahoConnection) Done() <-chan struct{} {
	return c.life.Done()
}

// Close closes the network connection without a DISCONNECT.
func (c *pahoConnection) Close() error {
	c.closing.Store(true)
	defer c.life.Close()
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// request logs the packet and runs send in the background, bound to the
// lifetime of the connection rather than to ctx.
func (c *pahoConnection) request(
	ctx context.Context,
	name string,
	packet any,
	send func(context.Context),
) error {
	if c.life.Closed() {
		return errConnectionClosed
	}
	c.log.Packet(ctx, name, packet)

	go func() {
		ctx, cancel := c.life.With(context.Background())
		defer cancel()
		send(ctx)
	}()
	return nil
}

func (c *pahoConnection) ack(id OperationID, code ReasonCode) {
	c.emit(Event{Kind: EventAckReceived, Operation: id, ReasonCode: code})
}

// emit delivers an event unless the connection has already been closed.
func (c *pahoConnection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.life.Done():
	}
}

func (c *pahoConnection) logResult(
	ctx context.Context,
	id OperationID,
	err error,
) {
	if err == nil || c.life.Closed() {
		return
	}
	c.log.Log(ctx, slog.LevelWarn, err.Error(),
		slog.Uint64("operation_id", uint64(id)),
	)
}

func (c *pahoConnection) onPublishReceived(
	p paho.PublishReceived,
) (bool, error) {
	ctx := context.Background()
	c.log.Packet(ctx, receivedPacket, p.Packet)
	c.emit(Event{Kind: EventMessageArrived, Message: buildMessage(p.Packet)})
	return true, nil
}

func (c *pahoConnection) onClientError(err error) {
	c.connectionLost(err)
}

func (c *pahoConnection) onServerDisconnect(d *paho.Disconnect) {
	_, err := disconnErr.translate(d, nil)
	if err == nil {
		err = &ReasonError{
			Code:    ReasonServerShuttingDown,
			Message: "server closed the connection",
		}
	}
	c.connectionLost(err)
}

// connectionLost reports the loss once and ends the connection's lifetime. A
// loss caused by our own disconnect or close is not reported.
func (c *pahoConnection) connectionLost(cause error) {
	if c.closing.Load() {
		return
	}
	c.lost.Do(func() {
		c.emit(Event{Kind: EventConnectionLost, Cause: cause})
		_ = c.conn.Close()
		c.life.Close()
	})
}
