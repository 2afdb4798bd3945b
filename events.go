// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

type (
	// ActionEvent reports the terminal outcome of an operation.
	ActionEvent struct {
		ID         OperationID
		Kind       OperationKind
		Topics     []string
		ReasonCode ReasonCode
	}

	// ActionListener receives the outcome of every operation, success or
	// failure, exactly once per operation.
	ActionListener interface {
		OnActionComplete(*ActionEvent)
	}

	// ActionListenerFunc adapts a function to an ActionListener.
	ActionListenerFunc func(*ActionEvent)

	// ConnectionEventKind distinguishes connection notifications.
	ConnectionEventKind byte

	// ConnectionEvent reports a change of the connection.
	ConnectionEvent struct {
		Kind ConnectionEventKind

		// For Connected: whether the broker resumed an existing session and
		// whether the connection was restored by Reconnect.
		SessionPresent bool
		Reconnected    bool

		// For ConnectionLost: why the connection went away, if known.
		Cause error
	}

	// Message is an application message received from the broker.
	Message struct {
		Topic     string
		Payload   []byte
		QoS       QoS
		Retain    bool
		Duplicate bool
	}

	// ConnectionListener receives connection notifications and incoming
	// messages.
	ConnectionListener interface {
		OnConnectionEvent(*ConnectionEvent)
		OnMessageArrived(*Message)
	}
)

const (
	// Connected is reported once the broker acknowledges a connect or
	// reconnect.
	Connected ConnectionEventKind = iota + 1

	// ConnectionLost is reported when an established connection goes away
	// without an explicit disconnect.
	ConnectionLost
)

func (k ConnectionEventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case ConnectionLost:
		return "connection lost"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the operation succeeded.
func (e *ActionEvent) Succeeded() bool {
	return e.ReasonCode.Succeeded()
}

// OnActionComplete calls f(e).
func (f ActionListenerFunc) OnActionComplete(e *ActionEvent) {
	f(e)
}
