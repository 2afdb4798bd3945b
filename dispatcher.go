// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/mqttsession/internal"
)

// dispatcher delivers notifications to listeners on a single ordered path.
// Notifications are queued in the order they are posted and run one at a time
// by at most one drain goroutine, which exits whenever the queue empties.
type dispatcher struct {
	queue *internal.Queue[func()]

	mu      sync.Mutex
	running bool

	actions     *internal.Listeners[ActionListener]
	connections *internal.Listeners[ConnectionListener]

	log logger
}

func newDispatcher(log logger) *dispatcher {
	return &dispatcher{
		queue:       internal.NewQueue[func()](0),
		actions:     internal.NewListeners[ActionListener](),
		connections: internal.NewListeners[ConnectionListener](),
		log:         log,
	}
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue.Enqueue(fn)
	if !d.running {
		d.running = true
		go d.drain()
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		fn, ok := d.queue.Dequeue()
		if !ok {
			d.running = false
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		d.invoke(fn)
	}
}

// invoke runs a single notification; a panicking listener is logged rather
// than taking down the dispatch path.
func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Err(context.Background(),
				fmt.Errorf("listener panicked: %v", r),
			)
		}
	}()
	fn()
}

// complete notifies action listeners of the operation's outcome and then
// resolves its token, as a single dispatch entry.
func (d *dispatcher) complete(op *operation, code ReasonCode) {
	event := &ActionEvent{
		ID:         op.id,
		Kind:       op.kind,
		Topics:     op.topics(),
		ReasonCode: code,
	}
	d.post(func() {
		defer op.token.resolve(code)
		for l := range d.actions.All() {
			d.invoke(func() { l.OnActionComplete(event) })
		}
	})
}

func (d *dispatcher) connectionEvent(event *ConnectionEvent) {
	d.post(func() {
		for l := range d.connections.All() {
			d.invoke(func() { l.OnConnectionEvent(event) })
		}
	})
}

func (d *dispatcher) message(msg *Message) {
	d.post(func() {
		for l := range d.connections.All() {
			d.invoke(func() { l.OnMessageArrived(msg) })
		}
	})
}
