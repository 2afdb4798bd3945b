// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"sync"
	"sync/atomic"

	"github.com/Azure/mqttsession/internal/wallclock"
)

type (
	// OperationID identifies an operation for the lifetime of a session
	// client. Identifiers are assigned in increasing order starting at 1.
	OperationID uint64

	// OperationKind indicates which session client call produced an
	// operation.
	OperationKind byte

	// QoS is the MQTT quality of service level.
	QoS byte

	// Subscription is an active (topic, qos) pair tracked by the session
	// client for resubscription.
	Subscription struct {
		Topic string
		QoS   QoS
	}

	// operation is one outstanding request. It is owned by the operation
	// tracker from submission until it is claimed for resolution.
	operation struct {
		id      OperationID
		kind    OperationKind
		topic   string
		qos     QoS
		payload []byte
		retain  bool

		// Connection attempt the operation was issued on.
		attempt uint64

		token   *Token
		claimed atomic.Bool

		// Guards timer, which is armed after the operation is published and
		// may be stopped from the deadline callback itself.
		timerMu sync.Mutex
		timer   wallclock.Timer
	}
)

const (
	KindConnect OperationKind = iota + 1
	KindDisconnect
	KindReconnect
	KindSubscribe
	KindUnsubscribe
	KindPublish
)

const (
	QoS0 QoS = iota
	QoS1
	QoS2

	// DefaultQoS is the QoS to use when the application has no preference.
	DefaultQoS = QoS1
)

func (k OperationKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindReconnect:
		return "reconnect"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// control reports whether the kind drives the connection lifecycle; at most
// one control operation is outstanding at a time.
func (k OperationKind) control() bool {
	return k == KindConnect || k == KindDisconnect || k == KindReconnect
}

func (q QoS) valid() bool {
	return q <= QoS2
}

// topics returns the topic list reported with the operation's notifications.
func (o *operation) topics() []string {
	if o.topic == "" {
		return nil
	}
	return []string{o.topic}
}

func (o *operation) stopTimer() {
	o.timerMu.Lock()
	defer o.timerMu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}
