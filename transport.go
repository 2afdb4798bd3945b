// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"net/url"
)

type (
	// Transport opens connections to a broker. It owns MQTT framing and the
	// network; the session client owns operation tracking and the connection
	// lifecycle.
	Transport interface {
		Open(ctx context.Context, address *url.URL) (Connection, error)
	}

	// Connection is a single open network connection to a broker.
	//
	// Send methods must not block on the broker's acknowledgement. The
	// outcome of each send is reported later on Events as an EventAckReceived
	// (or EventDeliveryComplete for QoS 1/2 publishes) carrying the operation
	// ID it was sent with. A send that cannot be handed off returns an error
	// instead, optionally a *ReasonError carrying a protocol reason code.
	//
	// QoS 0 publishes are complete once SendPublish returns successfully;
	// transports must not acknowledge them.
	//
	// When the connection goes away without SendDisconnect, the transport
	// emits EventConnectionLost and then closes Done. After SendDisconnect it
	// emits the disconnect's acknowledgement instead.
	Connection interface {
		SendConnect(ctx context.Context, id OperationID, opts *ConnectOptions) error
		SendSubscribe(ctx context.Context, id OperationID, topic string, qos QoS) error
		SendUnsubscribe(ctx context.Context, id OperationID, topic string) error
		SendPublish(ctx context.Context, id OperationID, msg *Message) error
		SendDisconnect(ctx context.Context, id OperationID) error

		Events() <-chan Event
		Done() <-chan struct{}
		Close() error
	}

	// ConnectOptions are the CONNECT parameters sent by the session client.
	ConnectOptions struct {
		ClientID     string
		CleanSession bool
		KeepAlive    uint16

		Username string
		Password []byte
	}

	// EventKind distinguishes transport events.
	EventKind byte

	// Event is a notification from a connection to the session client.
	Event struct {
		Kind EventKind

		// For EventAckReceived and EventDeliveryComplete.
		Operation      OperationID
		ReasonCode     ReasonCode
		SessionPresent bool

		// For EventMessageArrived.
		Message *Message

		// For EventConnectionLost.
		Cause error
	}
)

const (
	EventAckReceived EventKind = iota + 1
	EventDeliveryComplete
	EventMessageArrived
	EventConnectionLost
)

func (k EventKind) String() string {
	switch k {
	case EventAckReceived:
		return "ack received"
	case EventDeliveryComplete:
		return "delivery complete"
	case EventMessageArrived:
		return "message arrived"
	case EventConnectionLost:
		return "connection lost"
	default:
		return "unknown"
	}
}
