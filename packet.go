// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"github.com/eclipse/paho.golang/paho"
)

func buildConnect(opts *ConnectOptions) *paho.Connect {
	return &paho.Connect{
		ClientID:     opts.ClientID,
		CleanStart:   opts.CleanSession,
		KeepAlive:    opts.KeepAlive,
		Username:     opts.Username,
		UsernameFlag: opts.Username != "",
		Password:     opts.Password,
		PasswordFlag: len(opts.Password) != 0,
		Properties: &paho.ConnectProperties{
			// Keep the session for as long as the broker allows, unless a
			// clean session was requested.
			SessionExpiryInterval: sessionExpiry(opts.CleanSession),
			// Ask for reason strings so failures can be logged meaningfully.
			RequestProblemInfo: true,
		},
	}
}

func sessionExpiry(cleanSession bool) *uint32 {
	var expiry uint32
	if !cleanSession {
		expiry = maxSessionExpiry
	}
	return &expiry
}

func buildSubscribe(topic string, qos QoS) *paho.Subscribe {
	return &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: topic,
			QoS:   byte(qos),
		}},
	}
}

func buildUnsubscribe(topic string) *paho.Unsubscribe {
	return &paho.Unsubscribe{
		Topics: []string{topic},
	}
}

func buildPublish(msg *Message) *paho.Publish {
	return &paho.Publish{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     byte(msg.QoS),
		Retain:  msg.Retain,
	}
}

func buildDisconnect() *paho.Disconnect {
	return &paho.Disconnect{ReasonCode: disconnectNormalDisconnection}
}

func buildMessage(p *paho.Publish) *Message {
	return &Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     QoS(p.QoS),
		Retain:  p.Retain,
	}
}
