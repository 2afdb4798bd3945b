// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import "context"

// Subscribe registers interest in a topic filter. On success the subscription
// is added to the set restored after a reconnect. It fails immediately with
// ReasonNotConnected unless the client is connected.
func (c *SessionClient) Subscribe(topic string, qos QoS) *Token {
	if err := ValidateTopicFilter(topic); err != nil {
		return c.reject(KindSubscribe, topic, ReasonInvalidArgument, err.Error())
	}
	if !qos.valid() {
		return c.reject(KindSubscribe, topic, ReasonInvalidArgument,
			"invalid QoS")
	}

	op := &operation{kind: KindSubscribe, topic: topic, qos: qos}
	l, code := c.state.admit(op, c.options.OperationTimeout)
	if !code.Succeeded() {
		return c.reject(KindSubscribe, topic, code, "")
	}

	c.send(op, l, func(ctx context.Context) error {
		return l.conn.SendSubscribe(ctx, op.id, topic, qos)
	})
	return op.token
}

// Unsubscribe removes interest in a topic filter. On success the subscription
// is removed from the set restored after a reconnect.
func (c *SessionClient) Unsubscribe(topic string) *Token {
	if err := ValidateTopicFilter(topic); err != nil {
		return c.reject(KindUnsubscribe, topic, ReasonInvalidArgument,
			err.Error())
	}

	op := &operation{kind: KindUnsubscribe, topic: topic}
	l, code := c.state.admit(op, c.options.OperationTimeout)
	if !code.Succeeded() {
		return c.reject(KindUnsubscribe, topic, code, "")
	}

	c.send(op, l, func(ctx context.Context) error {
		return l.conn.SendUnsubscribe(ctx, op.id, topic)
	})
	return op.token
}
