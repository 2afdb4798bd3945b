// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type (
	// stubTransport hands out stub connections and lets a test play the
	// broker's part on them.
	stubTransport struct {
		mu      sync.Mutex
		openErr error

		opens  atomic.Int64
		opened chan *stubConnection
	}

	stubConnection struct {
		mu      sync.Mutex
		sendErr error

		sends    atomic.Int64
		requests chan stubRequest
		events   chan Event

		done   chan struct{}
		closed sync.Once
	}

	stubRequest struct {
		kind  OperationKind
		id    OperationID
		topic string
		qos   QoS
		msg   *Message
		opts  ConnectOptions
	}
)

const testTimeout = 2 * time.Second

func newStubTransport() *stubTransport {
	return &stubTransport{opened: make(chan *stubConnection, 16)}
}

func (t *stubTransport) Open(context.Context, *url.URL) (Connection, error) {
	t.opens.Add(1)

	t.mu.Lock()
	err := t.openErr
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c := &stubConnection{
		requests: make(chan stubRequest, 64),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
	t.opened <- c
	return c, nil
}

func (t *stubTransport) failOpen(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

// next returns the next connection opened by the client.
func (t *stubTransport) next(tb testing.TB) *stubConnection {
	tb.Helper()
	select {
	case c := <-t.opened:
		return c
	case <-time.After(testTimeout):
		require.FailNow(tb, "no connection opened")
		return nil
	}
}

func (c *stubConnection) send(req stubRequest) error {
	c.sends.Add(1)

	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.requests <- req
	return nil
}

func (c *stubConnection) SendConnect(
	_ context.Context,
	id OperationID,
	opts *ConnectOptions,
) error {
	return c.send(stubRequest{kind: KindConnect, id: id, opts: *opts})
}

func (c *stubConnection) SendSubscribe(
	_ context.Context,
	id OperationID,
	topic string,
	qos QoS,
) error {
	return c.send(stubRequest{kind: KindSubscribe, id: id, topic: topic, qos: qos})
}

func (c *stubConnection) SendUnsubscribe(
	_ context.Context,
	id OperationID,
	topic string,
) error {
	return c.send(stubRequest{kind: KindUnsubscribe, id: id, topic: topic})
}

func (c *stubConnection) SendPublish(
	_ context.Context,
	id OperationID,
	msg *Message,
) error {
	return c.send(stubRequest{
		kind:  KindPublish,
		id:    id,
		topic: msg.Topic,
		qos:   msg.QoS,
		msg:   msg,
	})
}

func (c *stubConnection) SendDisconnect(_ context.Context, id OperationID) error {
	return c.send(stubRequest{kind: KindDisconnect, id: id})
}

func (c *stubConnection) Events() <-chan Event {
	return c.events
}

func (c *stubConnection) Done() <-chan struct{} {
	return c.done
}

func (c *stubConnection) Close() error {
	c.closed.Do(func() { close(c.done) })
	return nil
}

func (c *stubConnection) failSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *stubConnection) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// next returns the next request the client sent on this connection.
func (c *stubConnection) next(tb testing.TB) stubRequest {
	tb.Helper()
	select {
	case req := <-c.requests:
		return req
	case <-time.After(testTimeout):
		require.FailNow(tb, "no request sent")
		return stubRequest{}
	}
}

func (c *stubConnection) ack(id OperationID, code ReasonCode) {
	c.events <- Event{Kind: EventAckReceived, Operation: id, ReasonCode: code}
}

func (c *stubConnection) connack(id OperationID, code ReasonCode, sp bool) {
	c.events <- Event{
		Kind:           EventAckReceived,
		Operation:      id,
		ReasonCode:     code,
		SessionPresent: sp,
	}
}

func (c *stubConnection) delivered(id OperationID, code ReasonCode) {
	c.events <- Event{Kind: EventDeliveryComplete, Operation: id, ReasonCode: code}
}

func (c *stubConnection) arrive(msg *Message) {
	c.events <- Event{Kind: EventMessageArrived, Message: msg}
}

// lose simulates an abrupt loss of the connection.
func (c *stubConnection) lose(cause error) {
	c.events <- Event{Kind: EventConnectionLost, Cause: cause}
	_ = c.Close()
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), testTimeout)
}

// wait blocks on the token and returns its reason code.
func wait(tb testing.TB, tok *Token) ReasonCode {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	code, err := tok.Wait(ctx)
	require.NoError(tb, err, "token for %s not resolved", tok.Kind())
	return code
}

func newStubClient(
	tb testing.TB,
	opts ...SessionClientOption,
) (*SessionClient, *stubTransport) {
	tb.Helper()
	tr := newStubTransport()
	c, err := NewSessionClient(
		"client",
		"tcp://localhost:1883",
		append([]SessionClientOption{WithTransport(tr)}, opts...)...,
	)
	require.NoError(tb, err)
	return c, tr
}

// connectStub connects the client through the stub transport.
func connectStub(
	tb testing.TB,
	c *SessionClient,
	tr *stubTransport,
) *stubConnection {
	tb.Helper()
	tok := c.Connect(true, 60)

	conn := tr.next(tb)
	req := conn.next(tb)
	require.Equal(tb, KindConnect, req.kind)
	require.Equal(tb, tok.ID(), req.id)

	conn.connack(req.id, ReasonSuccess, false)
	require.Equal(tb, ReasonSuccess, wait(tb, tok))
	require.Equal(tb, StateConnected, c.CurrentState())
	return conn
}

// recorder is a listener that records everything it is told.
type recorder struct {
	mu          sync.Mutex
	actions     []ActionEvent
	connections []ConnectionEvent
	messages    []Message
}

func (r *recorder) OnActionComplete(e *ActionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, *e)
}

func (r *recorder) OnConnectionEvent(e *ConnectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = append(r.connections, *e)
}

func (r *recorder) OnMessageArrived(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *m)
}

func (r *recorder) actionKinds() []OperationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]OperationKind, len(r.actions))
	for i, a := range r.actions {
		kinds[i] = a.Kind
	}
	return kinds
}

func (r *recorder) connectionKinds() []ConnectionEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ConnectionEventKind, len(r.connections))
	for i, e := range r.connections {
		kinds[i] = e.Kind
	}
	return kinds
}
