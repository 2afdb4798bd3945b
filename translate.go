// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"errors"
	"fmt"

	"github.com/eclipse/paho.golang/paho"
)

// Translation from Paho responses to reason codes.
type errMap[T any] struct {
	string string
	reason func(*T) (byte, string)
}

var (
	connErr = errMap[paho.Connack]{
		string: "MQTT connect",
		reason: func(a *paho.Connack) (byte, string) {
			if a.Properties == nil {
				return a.ReasonCode, ""
			}
			return a.ReasonCode, a.Properties.ReasonString
		},
	}
	subErr = errMap[paho.Suback]{
		string: "MQTT subscribe",
		reason: func(a *paho.Suback) (byte, string) {
			if len(a.Reasons) == 0 {
				return byte(ReasonProtocolError), "empty SUBACK"
			}
			if a.Properties == nil {
				return a.Reasons[0], ""
			}
			return a.Reasons[0], a.Properties.ReasonString
		},
	}
	unsubErr = errMap[paho.Unsuback]{
		string: "MQTT unsubscribe",
		reason: func(a *paho.Unsuback) (byte, string) {
			if len(a.Reasons) == 0 {
				return byte(ReasonProtocolError), "empty UNSUBACK"
			}
			if a.Properties == nil {
				return a.Reasons[0], ""
			}
			return a.Reasons[0], a.Properties.ReasonString
		},
	}
	pubErr = errMap[paho.PublishResponse]{
		string: "MQTT publish",
		reason: func(r *paho.PublishResponse) (byte, string) {
			// Paho could possibly return empty PublishResponse struct.
			if r.Properties == nil {
				return r.ReasonCode, ""
			}
			return r.ReasonCode, r.Properties.ReasonString
		},
	}
	disconnErr = errMap[paho.Disconnect]{
		string: "MQTT disconnect",
		reason: func(a *paho.Disconnect) (byte, string) {
			if a.Properties == nil {
				return a.ReasonCode, ""
			}
			return a.ReasonCode, a.Properties.ReasonString
		},
	}
)

var errNilResponse = errors.New(
	"the MQTT client returned a nil response without an error",
)

// translate maps a Paho response to a reason code. Paho returns an error for
// failed MQTT results as well as the result, so the result is checked first;
// an error without a result is a failure of the transport itself.
func (e *errMap[T]) translate(res *T, err error) (ReasonCode, error) {
	if res != nil {
		code, reason := e.reason(res)
		rc := protocolReason(code)
		if rc.Succeeded() {
			return ReasonSuccess, nil
		}
		return rc, &ReasonError{
			Code:    rc,
			Message: fmt.Sprintf("%s error: %s", e.string, reason),
		}
	}

	if err == nil {
		err = errNilResponse
	}
	return ReasonTransportError, &ConnectionError{
		message: e.string + " failed",
		wrapped: err,
	}
}
