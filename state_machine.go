// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Azure/mqttsession/internal"
)

// ConnectionState is the lifecycle state of the session client's connection.
type ConnectionState byte

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

var (
	errConnectionDown = errors.New("connection down")
	errSessionClosed  = errors.New("session closed")
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type (
	// stateMachine owns the connection lifecycle and the subscription set.
	// Every transition, and every operation submission that a transition may
	// need to sweep, happens under mu; a sweep can therefore never miss an
	// operation admitted against the connection it is tearing down.
	stateMachine struct {
		mu sync.Mutex

		state         ConnectionState
		everConnected bool

		// The outstanding connect, reconnect, or disconnect operation, and the
		// state to fall back to if it fails.
		control *operation
		resume  ConnectionState

		// Current network connection, if one is open. Down is closed when it
		// goes away, cancelling any in-flight sends.
		conn Connection
		down *internal.Background

		// Channel that is closed while the state is Connected.
		up chan struct{}

		// Counter for connection attempts. Events from a connection opened by
		// an earlier attempt are ignored.
		attempt uint64

		// Lifetime of the session as requested by the user; closed by an
		// explicit disconnect, which stops automatic reconnection.
		session *internal.Background

		options       ConnectOptions
		subscriptions map[string]QoS

		ops *operationTracker
		log logger
	}

	// Where to send an admitted operation.
	link struct {
		conn Connection
		down *internal.Background
	}

	// The effects of a transition that must be applied outside the lock.
	transitionResult struct {
		// Connection to close.
		conn Connection

		// Operations claimed by a sweep, to be completed in order.
		swept []*operation
		code  ReasonCode

		// Set when the client became connected.
		connected   bool
		reconnected bool
		resubscribe []Subscription

		// Set when an established connection was lost involuntarily.
		lost    bool
		cause   error
		session *internal.Background
	}
)

func newStateMachine(ops *operationTracker, log logger) *stateMachine {
	m := &stateMachine{
		up:            make(chan struct{}),
		down:          internal.NewBackground(errConnectionDown),
		session:       internal.NewBackground(errSessionClosed),
		subscriptions: map[string]QoS{},
		ops:           ops,
		log:           log,
	}

	// Down and session are closed iff there is no connection or session.
	m.down.Close()
	m.session.Close()
	return m
}

// State returns the current connection state.
func (m *stateMachine) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Subscriptions returns the active subscriptions sorted by topic.
func (m *stateMachine) Subscriptions() []Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.subscriptionsLocked()
}

func (m *stateMachine) subscriptionsLocked() []Subscription {
	subs := make([]Subscription, 0, len(m.subscriptions))
	for _, topic := range slices.Sorted(maps.Keys(m.subscriptions)) {
		subs = append(subs, Subscription{topic, m.subscriptions[topic]})
	}
	return subs
}

// waitConnected blocks until the state is Connected or ctx is done.
func (m *stateMachine) waitConnected(ctx context.Context) error {
	for {
		m.mu.Lock()
		up, state := m.up, m.state
		m.mu.Unlock()

		if state == StateConnected {
			return nil
		}

		select {
		case <-up:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// beginConnect moves Disconnected to Connecting and submits the connect
// operation.
func (m *stateMachine) beginConnect(
	opts ConnectOptions,
	timeout time.Duration,
) (*operation, ReasonCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDisconnected {
		return nil, ReasonAlreadyConnected
	}

	m.options = opts
	if opts.CleanSession {
		clear(m.subscriptions)
	}
	m.session = internal.NewBackground(errSessionClosed)

	op := m.submitControl(KindConnect, timeout)
	m.resume = StateDisconnected
	m.transition(StateConnecting)
	return op, ReasonSuccess
}

// beginReconnect submits a reconnect operation using the options of the last
// connect, always resuming the existing session. With auto set it only
// proceeds while Reconnecting, so automatic reconnection never revives a
// session the user has disconnected.
func (m *stateMachine) beginReconnect(
	timeout time.Duration,
	auto bool,
) (*operation, ConnectOptions, ReasonCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := m.options
	opts.CleanSession = false

	switch {
	case !m.everConnected:
		return nil, opts, ReasonNotInitialized
	case auto && m.state != StateReconnecting:
		return nil, opts, ReasonNotConnected
	case m.state == StateConnected,
		m.state == StateConnecting,
		m.control != nil:
		return nil, opts, ReasonAlreadyConnected
	}

	op := m.submitControl(KindReconnect, timeout)
	if m.state == StateDisconnected {
		m.session = internal.NewBackground(errSessionClosed)
		m.resume = StateDisconnected
		m.transition(StateConnecting)
	} else {
		m.resume = StateReconnecting
	}
	return op, opts, ReasonSuccess
}

// submitControl must be called with mu held.
func (m *stateMachine) submitControl(
	kind OperationKind,
	timeout time.Duration,
) *operation {
	m.attempt++
	op := &operation{kind: kind, attempt: m.attempt}
	m.ops.submit(op, timeout)
	m.control = op
	return op
}

// opened records the connection opened for a connect or reconnect. It reports
// false if the operation has been resolved or superseded in the meantime, in
// which case the caller must close conn.
func (m *stateMachine) opened(op *operation, conn Connection) (link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.control != op || op.attempt != m.attempt {
		return link{}, false
	}

	m.conn = conn
	m.down = internal.NewBackground(errConnectionDown)
	return link{conn, m.down}, true
}

// acknowledged applies the outcome of a connect or reconnect operation that
// the caller has claimed.
func (m *stateMachine) acknowledged(
	op *operation,
	code ReasonCode,
	sessionPresent bool,
) (res transitionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.control != op {
		return res
	}
	m.control = nil

	if code.Succeeded() {
		res.connected = true
		res.reconnected = op.kind == KindReconnect
		if res.reconnected {
			res.resubscribe = m.subscriptionsLocked()
		}
		m.everConnected = true
		m.transition(StateConnected)
		close(m.up)
		m.log.connected(op, sessionPresent)
		return res
	}

	res.conn = m.dropLocked()
	res.code = ReasonNotConnected
	res.swept = m.ops.sweep(res.code)
	m.transition(m.resume)
	return res
}

// lost handles the involuntary loss of conn.
func (m *stateMachine) lost(conn Connection, cause error) (res transitionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn == nil || conn != m.conn {
		return res
	}

	res.conn = m.dropLocked()
	switch m.state {
	case StateConnected:
		m.up = make(chan struct{})
		if m.control != nil && m.control.kind == KindDisconnect {
			// The disconnect we asked for completed the hard way.
			m.endSessionLocked()
			m.transition(StateDisconnected)
		} else {
			res.lost = true
			res.cause = cause
			res.session = m.session
			m.transition(StateReconnecting)
		}
	case StateConnecting:
		m.transition(m.resume)
	}
	m.control = nil

	res.code = ReasonConnectionLost
	res.swept = m.ops.sweep(res.code)
	m.log.connectionLost(cause, len(res.swept))
	return res
}

// beginDisconnect submits a disconnect operation if Connected. If the client
// is Reconnecting, it instead abandons the session immediately, which is
// reported as ReasonNotConnected with the result's effects to apply.
func (m *stateMachine) beginDisconnect(
	timeout time.Duration,
) (*operation, link, transitionResult, ReasonCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res transitionResult
	switch {
	case m.state == StateConnected && m.control == nil:
		op := &operation{kind: KindDisconnect, attempt: m.attempt}
		m.ops.submit(op, timeout)
		m.control = op
		m.resume = StateConnected
		return op, link{m.conn, m.down}, res, ReasonSuccess

	case m.state == StateReconnecting:
		res.conn = m.dropLocked()
		m.control = nil
		m.endSessionLocked()
		res.code = ReasonConnectionLost
		res.swept = m.ops.sweep(res.code)
		m.transition(StateDisconnected)
		return nil, link{}, res, ReasonNotConnected

	default:
		return nil, link{}, res, ReasonNotConnected
	}
}

// abandonConnect gives up on a connect or reconnect that is still being
// established from Disconnected, closing whatever connection it has opened
// so far. The connect operation is resolved with ReasonConnectionLost, as is
// anything else still outstanding. It reports false unless Connecting.
func (m *stateMachine) abandonConnect() (res transitionResult, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting {
		return res, false
	}

	res.conn = m.dropLocked()
	m.control = nil
	m.endSessionLocked()
	res.code = ReasonConnectionLost
	res.swept = m.ops.sweep(res.code)
	m.transition(StateDisconnected)
	return res, true
}

// disconnected completes an explicit disconnect after its own operation has
// been resolved.
func (m *stateMachine) disconnected(op *operation) (res transitionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.control != op {
		// Connection loss got here first and already tore everything down.
		return res
	}

	res.conn = m.dropLocked()
	m.control = nil
	m.up = make(chan struct{})
	m.endSessionLocked()
	res.code = ReasonConnectionLost
	res.swept = m.ops.sweep(res.code)
	m.transition(StateDisconnected)
	return res
}

// admit submits a subscribe, unsubscribe, or publish if Connected.
func (m *stateMachine) admit(
	op *operation,
	timeout time.Duration,
) (link, ReasonCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return link{}, ReasonNotConnected
	}

	op.attempt = m.attempt
	m.ops.submit(op, timeout)
	return link{m.conn, m.down}, ReasonSuccess
}

// subscribed records the subscription of a successful subscribe, unless the
// connection it was issued on has gone away or the session has ended since.
func (m *stateMachine) subscribed(op *operation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentLocked(op) {
		m.subscriptions[op.topic] = op.qos
	}
}

func (m *stateMachine) unsubscribed(op *operation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentLocked(op) {
		delete(m.subscriptions, op.topic)
	}
}

func (m *stateMachine) currentLocked(op *operation) bool {
	return op.attempt == m.attempt && !m.session.Closed()
}

// dropLocked forgets the current connection, returning it for the caller to
// close. Any event still arriving from it is ignored afterwards.
func (m *stateMachine) dropLocked() Connection {
	conn := m.conn
	m.conn = nil
	m.attempt++
	m.down.Close()
	return conn
}

func (m *stateMachine) endSessionLocked() {
	clear(m.subscriptions)
	m.session.Close()
}

func (m *stateMachine) transition(to ConnectionState) {
	if m.state == to {
		return
	}
	m.log.transition(m.state, to)
	m.state = to
}
