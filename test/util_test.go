// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package test

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/mqttsession"
	"github.com/stretchr/testify/require"
)

const (
	clientID        string = "sandycheeks"
	topicName       string = "patrick"
	topicName2      string = "plankton"
	publishMessage  string = "squidward"
	publishMessage2 string = "squarepants"

	testTimeout = 5 * time.Second
)

// listener forwards session client notifications onto channels.
type listener struct {
	events   chan *mqttsession.ConnectionEvent
	messages chan *mqttsession.Message
}

func newListener(t *testing.T, client *mqttsession.SessionClient) *listener {
	l := &listener{
		events:   make(chan *mqttsession.ConnectionEvent, 16),
		messages: make(chan *mqttsession.Message, 16),
	}
	t.Cleanup(client.RegisterConnectionListener(l))
	return l
}

func (l *listener) OnConnectionEvent(e *mqttsession.ConnectionEvent) {
	l.events <- e
}

func (l *listener) OnMessageArrived(m *mqttsession.Message) {
	l.messages <- m
}

func (l *listener) nextEvent(t *testing.T) *mqttsession.ConnectionEvent {
	t.Helper()
	select {
	case e := <-l.events:
		return e
	case <-time.After(testTimeout):
		require.FailNow(t, "no connection event")
		return nil
	}
}

func (l *listener) nextMessage(t *testing.T) *mqttsession.Message {
	t.Helper()
	select {
	case m := <-l.messages:
		return m
	case <-time.After(testTimeout):
		require.FailNow(t, "no message")
		return nil
	}
}

// succeed waits for the token and requires that the operation succeeded.
func succeed(t *testing.T, tok *mqttsession.Token) {
	t.Helper()
	require.Equal(t, mqttsession.ReasonSuccess, resolve(t, tok))
}

func resolve(t *testing.T, tok *mqttsession.Token) mqttsession.ReasonCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	code, err := tok.Wait(ctx)
	require.NoError(t, err)
	return code
}
