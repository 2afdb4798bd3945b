// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal_test

import (
	"sync"
	"testing"

	"github.com/Azure/mqttsession/internal"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	q := internal.NewQueue[int](100)

	for i := 100; i > 0; i-- {
		require.True(t, q.Enqueue(i))
	}

	for i := 100; i > 0; i-- {
		value, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, value)
	}

	require.True(t, q.IsEmpty())
}

func TestQueueOrder(t *testing.T) {
	q := internal.NewQueue[int](0)

	for i := 0; i < 50; i++ {
		q.Enqueue(i)
	}

	for i := 0; i < 10; i++ {
		value, _ := q.Dequeue()
		require.Equal(t, i, value)
	}

	// Wraps around the ring and forces a resize with a non-zero read index.
	for i := 50; i < 100; i++ {
		q.Enqueue(i)
	}

	for i := 10; i < 100; i++ {
		value, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, value)
	}
	require.Equal(t, 0, q.Size())
}

func TestQueueMaxSize(t *testing.T) {
	q := internal.NewQueue[int](10)

	for i := 0; i < 10; i++ {
		require.True(t, q.Enqueue(i))
	}
	require.False(t, q.Enqueue(10))
	require.Equal(t, 10, q.Size())

	for i := 0; i < 10; i++ {
		value, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, value)
	}

	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestQueueAsync(t *testing.T) {
	q := internal.NewQueue[int](0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			q.Enqueue(val)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := 0; i < 100; i++ {
		value, ok := q.Dequeue()
		require.True(t, ok)
		seen[value] = true
	}

	for i := 0; i < 100; i++ {
		require.True(t, seen[i], i)
	}
}
