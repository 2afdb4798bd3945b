// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/Azure/mqttsession/internal"
	"github.com/Azure/mqttsession/internal/log"
	"github.com/Azure/mqttsession/retry"
)

type (
	// SessionClient maintains a single MQTT connection and tracks the
	// operations issued against it. Every operation returns a Token
	// immediately and is resolved exactly once.
	SessionClient struct {
		identity ClientIdentity
		options  SessionClientOptions

		state    *stateMachine
		ops      *operationTracker
		dispatch *dispatcher

		// Set while an automatic reconnection loop is running.
		reconnecting atomic.Bool

		log logger
	}

	// ClientIdentity is the immutable identity of a session client.
	ClientIdentity struct {
		clientID string
		address  *url.URL
	}
)

const clientIDPrefix = "sessionclient"

// Default ports by URL scheme.
var defaultPorts = map[string]string{
	"tcp":   "1883",
	"mqtt":  "1883",
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
	"ws":    "80",
	"wss":   "443",
}

// NewSessionClient constructs a session client for the given client ID and
// broker address (e.g. "tcp://localhost:1883"). An empty client ID selects a
// random one. A malformed address is reported as an *Error with
// ReasonInitializationFailed.
func NewSessionClient(
	clientID string,
	brokerAddress string,
	opts ...SessionClientOption,
) (*SessionClient, error) {
	address, err := parseBrokerAddress(brokerAddress)
	if err != nil {
		return nil, &Error{
			Code:    ReasonInitializationFailed,
			Message: "invalid broker address",
			wrapped: err,
		}
	}

	if clientID == "" {
		clientID = internal.RandomClientID(clientIDPrefix)
	} else if !internal.ValidString(clientID) {
		return nil, &Error{
			Code:    ReasonInitializationFailed,
			Message: "invalid client ID",
		}
	}

	c := &SessionClient{identity: ClientIdentity{clientID, address}}
	c.options.Apply(opts)

	c.log = logger{log.Wrap(c.options.Logger)}

	if eb, ok := c.options.AutoReconnect.(*retry.ExponentialBackoff); ok &&
		eb.Logger == nil {
		eb.Logger = c.options.Logger
	}

	switch t := c.options.Transport.(type) {
	case nil:
		c.options.Transport = &PahoTransport{Logger: c.options.Logger}
	case *PahoTransport:
		if t.Logger == nil {
			t.Logger = c.options.Logger
		}
	}

	c.ops = newOperationTracker(c.log, c.expire)
	c.state = newStateMachine(c.ops, c.log)
	c.dispatch = newDispatcher(c.log)
	return c, nil
}

func parseBrokerAddress(address string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in %q", address)
	}

	if p := u.Port(); p != "" {
		if _, err := strconv.ParseUint(p, 10, 16); err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
	} else {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u, nil
}

// ClientID returns the MQTT client ID.
func (i ClientIdentity) ClientID() string {
	return i.clientID
}

// BrokerAddress returns the normalized broker address.
func (i ClientIdentity) BrokerAddress() string {
	return i.address.String()
}

// ID returns the MQTT client ID for this session client.
func (c *SessionClient) ID() string {
	return c.identity.clientID
}

// Identity returns the client ID and broker address of this session client.
func (c *SessionClient) Identity() ClientIdentity {
	return c.identity
}

// CurrentState returns the connection state. It is intended for diagnostics;
// operations check the state themselves.
func (c *SessionClient) CurrentState() ConnectionState {
	return c.state.State()
}

// IsConnected reports whether the client is currently connected. Prefer
// WaitConnected or the connect token over polling this.
func (c *SessionClient) IsConnected() bool {
	return c.state.State() == StateConnected
}

// Close disconnects the client if it is connected, or abandons the session if
// it is connecting or reconnecting, and waits for the outcome. It is not an
// error to close a client that is already disconnected.
func (c *SessionClient) Close() error {
	if res, ok := c.state.abandonConnect(); ok {
		c.apply(res, false)
		return nil
	}

	tok := c.Disconnect()
	<-tok.Done()

	var err *Error
	if errors.As(tok.Err(), &err) && err.Code == ReasonNotConnected {
		return nil
	}
	return tok.Err()
}

// Subscriptions returns the active subscriptions sorted by topic.
func (c *SessionClient) Subscriptions() []Subscription {
	return c.state.Subscriptions()
}

// Outstanding returns the number of operations awaiting resolution.
func (c *SessionClient) Outstanding() int {
	return c.ops.outstanding()
}

// WaitConnected blocks until the client is connected or ctx is done.
func (c *SessionClient) WaitConnected(ctx context.Context) error {
	return c.state.waitConnected(ctx)
}

// RegisterActionListener registers a listener for operation outcomes. It
// returns a function that removes the listener again.
func (c *SessionClient) RegisterActionListener(l ActionListener) func() {
	return c.dispatch.actions.Add(l)
}

// RegisterConnectionListener registers a listener for connection events and
// incoming messages. It returns a function that removes the listener again.
func (c *SessionClient) RegisterConnectionListener(
	l ConnectionListener,
) func() {
	return c.dispatch.connections.Add(l)
}

// listen consumes events from conn until it is done.
func (c *SessionClient) listen(conn Connection) {
	events := conn.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.connectionLost(conn, nil)
				return
			}
			c.handle(conn, ev)

		case <-conn.Done():
			// Deliver whatever the transport emitted before closing.
			for {
				select {
				case ev, ok := <-events:
					if ok {
						c.handle(conn, ev)
						continue
					}
				default:
				}
				c.connectionLost(conn, nil)
				return
			}
		}
	}
}

func (c *SessionClient) handle(conn Connection, ev Event) {
	switch ev.Kind {
	case EventAckReceived, EventDeliveryComplete:
		c.resolve(ev.Operation, ev.ReasonCode, ev.SessionPresent)

	case EventMessageArrived:
		if ev.Message != nil {
			c.dispatch.message(ev.Message)
		}

	case EventConnectionLost:
		c.connectionLost(conn, ev.Cause)
	}
}

// resolve claims the operation and applies its outcome.
func (c *SessionClient) resolve(
	id OperationID,
	code ReasonCode,
	sessionPresent bool,
) {
	if op, ok := c.ops.claim(id, code); ok {
		c.finish(op, code, sessionPresent)
	}
}

// fail resolves an operation whose send could not be handed off.
func (c *SessionClient) fail(op *operation, code ReasonCode, err error) {
	// Losing the race against a sweep is expected here; don't report it.
	if op.claimed.Load() {
		return
	}
	if err != nil {
		c.log.Err(context.Background(), &Error{
			Code:    code,
			Kind:    op.kind,
			wrapped: err,
		})
	}
	c.resolve(op.id, code, false)
}

func (c *SessionClient) expire(id OperationID) {
	c.resolve(id, ReasonTimedOut, false)
}

// finish applies the side effects of a claimed operation's outcome and then
// completes it. Bookkeeping always precedes the completion, so a caller woken
// by the token observes the updated state.
func (c *SessionClient) finish(
	op *operation,
	code ReasonCode,
	sessionPresent bool,
) {
	switch op.kind {
	case KindConnect, KindReconnect:
		res := c.state.acknowledged(op, code, sessionPresent)
		c.dispatch.complete(op, code)
		c.apply(res, sessionPresent)

	case KindDisconnect:
		// The disconnect's own outcome is reported before anything it
		// swept.
		res := c.state.disconnected(op)
		c.dispatch.complete(op, code)
		c.apply(res, false)

	case KindSubscribe:
		if code.Succeeded() {
			c.state.subscribed(op)
		}
		c.dispatch.complete(op, code)

	case KindUnsubscribe:
		if code.Succeeded() {
			c.state.unsubscribed(op)
		}
		c.dispatch.complete(op, code)

	default:
		c.dispatch.complete(op, code)
	}
}

// apply carries out the effects of a state transition outside the lock.
func (c *SessionClient) apply(res transitionResult, sessionPresent bool) {
	if res.conn != nil {
		if err := res.conn.Close(); err != nil {
			c.log.Err(context.Background(), &ConnectionError{
				message: "error closing connection",
				wrapped: err,
			})
		}
	}

	for _, op := range res.swept {
		c.dispatch.complete(op, res.code)
	}

	if res.connected {
		c.dispatch.connectionEvent(&ConnectionEvent{
			Kind:           Connected,
			SessionPresent: sessionPresent,
			Reconnected:    res.reconnected,
		})
		c.resubscribe(res.resubscribe)
	}

	if res.lost {
		c.dispatch.connectionEvent(&ConnectionEvent{
			Kind:  ConnectionLost,
			Cause: res.cause,
		})
		c.startReconnect(res.session)
	}
}

// resubscribe restores subscriptions after a reconnect. Each topic is its own
// operation; failures are reported to action listeners and do not affect the
// connection.
func (c *SessionClient) resubscribe(subs []Subscription) {
	for _, sub := range subs {
		c.Subscribe(sub.Topic, sub.QoS)
	}
}
