// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"iter"
	"sync"
)

type listenerNode[T any] struct {
	value T
	prev  *listenerNode[T]
	next  *listenerNode[T]
}

// Listeners is a concurrency-safe registration list. Entries are visited in
// registration order and each registration can be removed independently.
type Listeners[T any] struct {
	mu    sync.RWMutex
	first *listenerNode[T]
	last  *listenerNode[T]
	size  int
}

func NewListeners[T any]() *Listeners[T] {
	return &Listeners[T]{}
}

// Add registers value and returns the function that removes it again.
func (l *Listeners[T]) Add(value T) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	node := &listenerNode[T]{value: value}
	if l.last == nil {
		l.first = node
	} else {
		l.last.next = node
	}
	node.prev = l.last
	l.last = node
	l.size++

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if node == nil {
			// Already removed.
			return
		}

		if node.prev == nil {
			l.first = node.next
		} else {
			node.prev.next = node.next
		}

		if node.next == nil {
			l.last = node.prev
		} else {
			node.next.prev = node.prev
		}

		l.size--
		node = nil
	}
}

// Len returns the number of registered entries.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.size
}

// All iterates over a snapshot of the registered entries, so the callback may
// add or remove entries without deadlocking.
func (l *Listeners[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		l.mu.RLock()
		values := make([]T, 0, l.size)
		for curr := l.first; curr != nil; curr = curr.next {
			values = append(values, curr.value)
		}
		l.mu.RUnlock()

		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}
}
