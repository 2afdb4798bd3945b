// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"errors"
	"math"

	"github.com/Azure/mqttsession/internal"
)

// Connect opens a connection to the broker. cleanSession asks the broker to
// discard any previous session state for this client ID; keepAliveSeconds is
// the ping interval the transport must honor. It fails immediately with
// ReasonAlreadyConnected unless the client is disconnected.
func (c *SessionClient) Connect(cleanSession bool, keepAliveSeconds int) *Token {
	if keepAliveSeconds < 0 || keepAliveSeconds > math.MaxUint16 {
		return c.reject(KindConnect, "", ReasonInvalidArgument,
			"keep alive out of range")
	}

	opts := ConnectOptions{
		ClientID:     c.identity.clientID,
		CleanSession: cleanSession,
		KeepAlive:    uint16(keepAliveSeconds),
	}

	op, code := c.state.beginConnect(opts, c.options.OperationTimeout)
	if !code.Succeeded() {
		return c.reject(KindConnect, "", code, "")
	}

	go c.establish(op, opts)
	return op.token
}

// Reconnect restores the connection with the options of the last Connect,
// resuming the existing session. It fails with ReasonNotInitialized if no
// connection was ever established, and with ReasonAlreadyConnected if one is
// established or being established.
func (c *SessionClient) Reconnect() *Token {
	return c.reconnect(false)
}

func (c *SessionClient) reconnect(auto bool) *Token {
	op, opts, code := c.state.beginReconnect(c.options.OperationTimeout, auto)
	if !code.Succeeded() {
		return c.reject(KindReconnect, "", code, "")
	}

	go c.establish(op, opts)
	return op.token
}

// Disconnect gracefully closes the connection. Operations still outstanding
// once the disconnect itself has resolved are resolved with
// ReasonConnectionLost. Called while reconnecting, it abandons the session
// immediately and resolves with ReasonNotConnected.
func (c *SessionClient) Disconnect() *Token {
	op, l, res, code := c.state.beginDisconnect(c.options.OperationTimeout)
	if !code.Succeeded() {
		c.apply(res, false)
		return c.reject(KindDisconnect, "", code, "")
	}

	c.send(op, l, func(ctx context.Context) error {
		return l.conn.SendDisconnect(ctx, op.id)
	})
	return op.token
}

// establish opens the network connection for a connect or reconnect and sends
// the CONNECT. The acknowledgement arrives through the connection's events.
func (c *SessionClient) establish(op *operation, opts ConnectOptions) {
	ctx := context.Background()
	if c.options.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.OperationTimeout)
		defer cancel()
	}

	if err := c.credentials(ctx, &opts); err != nil {
		c.fail(op, ReasonInvalidArgument, err)
		return
	}

	conn, err := c.options.Transport.Open(ctx, c.identity.address)
	if err != nil {
		c.fail(op, reasonOf(err), err)
		return
	}

	l, ok := c.state.opened(op, conn)
	if !ok {
		// Timed out or superseded while dialing.
		_ = conn.Close()
		return
	}

	go c.listen(conn)
	c.send(op, l, func(ctx context.Context) error {
		return conn.SendConnect(ctx, op.id, &opts)
	})
}

func (c *SessionClient) credentials(
	ctx context.Context,
	opts *ConnectOptions,
) error {
	if c.options.Username != nil {
		username, ok, err := c.options.Username(ctx)
		if err != nil {
			return &InvalidArgumentError{
				message: "error getting username",
				wrapped: err,
			}
		}
		if ok {
			opts.Username = username
		}
	}

	if c.options.Password != nil {
		password, ok, err := c.options.Password(ctx)
		if err != nil {
			return &InvalidArgumentError{
				message: "error getting password",
				wrapped: err,
			}
		}
		if ok {
			opts.Password = password
		}
	}
	return nil
}

// send hands an admitted operation to the connection. The context passed to
// the transport only bounds the hand-off and is cancelled if the connection
// goes down while it is in progress.
func (c *SessionClient) send(
	op *operation,
	l link,
	fn func(context.Context) error,
) {
	ctx, cancel := l.down.With(context.Background())
	defer cancel()

	if err := fn(ctx); err != nil {
		c.fail(op, reasonOf(err), err)
		return
	}

	// No acknowledgement follows a QoS 0 publish.
	if op.kind == KindPublish && op.qos == QoS0 {
		c.resolve(op.id, ReasonSuccess, false)
	}
}

// connectionLost handles the loss of conn, if it is still the current
// connection.
func (c *SessionClient) connectionLost(conn Connection, cause error) {
	c.apply(c.state.lost(conn, cause), false)
}

// startReconnect runs the automatic reconnection loop for the session, unless
// it is disabled or already running.
func (c *SessionClient) startReconnect(session *internal.Background) {
	if c.options.AutoReconnect == nil || session == nil ||
		!c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		ctx, cancel := session.With(context.Background())
		defer cancel()

		for {
			err := c.options.AutoReconnect.Start(ctx, "reconnect", c.maintain)
			if err != nil && !errors.Is(err, errSessionClosed) {
				c.log.Err(ctx, err)
			}

			// The connection may have dropped again after this loop had
			// already restored it; in that case keep going.
			c.reconnecting.Store(false)
			if err != nil || c.CurrentState() != StateReconnecting ||
				!c.reconnecting.CompareAndSwap(false, true) {
				return
			}
		}
	}()
}

// maintain is a single automatic reconnection attempt.
func (c *SessionClient) maintain(ctx context.Context) (bool, error) {
	code, err := c.reconnect(true).Wait(ctx)
	if err != nil {
		return false, err
	}
	if code.Succeeded() {
		return false, nil
	}

	switch c.CurrentState() {
	case StateConnected:
		// Someone else's reconnect won.
		return false, nil
	case StateDisconnected:
		return false, errSessionClosed
	}
	return retryable(code), &Error{Code: code, Kind: KindReconnect}
}

func (c *SessionClient) reject(
	kind OperationKind,
	topic string,
	code ReasonCode,
	msg string,
) *Token {
	c.log.rejected(kind, topic, code)
	return rejectedToken(kind, topic, code, msg)
}
