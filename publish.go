// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"slices"
)

// Publish sends an application message. A QoS 0 publish resolves as soon as
// the transport has taken it; QoS 1 and 2 publishes resolve once the broker
// has acknowledged delivery.
func (c *SessionClient) Publish(
	topic string,
	payload []byte,
	qos QoS,
	retain bool,
) *Token {
	if err := ValidateTopicName(topic); err != nil {
		return c.reject(KindPublish, topic, ReasonInvalidArgument, err.Error())
	}
	if !qos.valid() {
		return c.reject(KindPublish, topic, ReasonInvalidArgument,
			"invalid QoS")
	}

	op := &operation{
		kind:    KindPublish,
		topic:   topic,
		qos:     qos,
		payload: slices.Clone(payload),
		retain:  retain,
	}
	l, code := c.state.admit(op, c.options.OperationTimeout)
	if !code.Succeeded() {
		return c.reject(KindPublish, topic, code, "")
	}

	msg := &Message{
		Topic:   op.topic,
		Payload: op.payload,
		QoS:     op.qos,
		Retain:  op.retain,
	}
	c.send(op, l, func(ctx context.Context) error {
		return l.conn.SendPublish(ctx, op.id, msg)
	})
	return op.token
}
