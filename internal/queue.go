// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"sync"
)

// Queue is a concurrency-safe generic circular FIFO queue.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	maxSize int // Zero means unbounded.
	size    int
	enter   int // Points to the next position for entering
	leave   int // Points to the next item that is leaving
}

// NewQueue creates a new Queue holding at most maxSize items (zero for no
// limit).
func NewQueue[T any](maxSize int) *Queue[T] {
	return &Queue[T]{maxSize: maxSize}
}

// Size returns the number of items in the queue.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size
}

// Enqueue adds an item to the end of the queue. It reports false, leaving the
// queue unchanged, if the queue is full.
func (q *Queue[T]) Enqueue(value T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && q.size == q.maxSize {
		return false
	}

	if len(q.items) == q.size {
		q.grow()
	}

	q.items[q.enter] = value
	q.enter = q.move(q.enter)
	q.size++
	return true
}

// Dequeue removes and returns the item at the front of the queue.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.items[q.leave]
	// Drop the reference so the item can be collected.
	q.items[q.leave] = zero
	q.leave = q.move(q.leave)
	q.size--
	return item, true
}

// IsEmpty returns whether the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size == 0
}

// grow doubles the backing slice, keeping the items in FIFO order.
func (q *Queue[T]) grow() {
	oldSize := len(q.items)
	newSize := oldSize*2 + 1

	// [4,5,1,2,3] => [4,5,(1),(2),(3),_,_,_,1,2,3]
	// q.enter = 2, q.leave = 2
	// oldSize = 5, newSize = 11
	// oldLeave = 2, newLeave = 11 - (5 - 2) = 8
	oldLeave := q.leave
	newLeave := newSize - (oldSize - oldLeave)
	if oldSize == 0 {
		newLeave = 0
	}

	q.items = append(q.items, make([]T, newSize-oldSize)...)

	copy(q.items[newLeave:], q.items[oldLeave:oldSize])
	var zero T
	for i := oldLeave; i < min(newLeave, oldSize); i++ {
		q.items[i] = zero
	}
	q.leave = newLeave
}

// move increments the index circularly.
func (q *Queue[T]) move(index int) int {
	return (index + 1) % len(q.items)
}
