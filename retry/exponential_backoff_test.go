// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/mqttsession/retry"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type Mock struct {
	mock.Mock
}

var (
	errRetryable = errors.New("this error is retryable")
	errFatal     = errors.New("this error is fatal")
)

// Mocked retry executed function.
func (m *Mock) Task(context.Context) (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func fast() *retry.ExponentialBackoff {
	return &retry.ExponentialBackoff{
		MinInterval: time.Millisecond,
		MaxInterval: 4 * time.Millisecond,
	}
}

func TestNoRetry(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(false, nil)

	err := fast().Start(context.Background(), "TestNoRetry", m.Task)

	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestNotRetryable(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(false, errFatal)

	err := fast().Start(context.Background(), "TestNotRetryable", m.Task)

	require.ErrorIs(t, err, errFatal)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestMaxAttempts(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(true, errRetryable)

	r := fast()
	r.MaxAttempts = 3
	err := r.Start(context.Background(), "TestMaxAttempts", m.Task)

	require.EqualError(t, err, errRetryable.Error())
	m.AssertNumberOfCalls(t, "Task", 3)
}

func TestRetryUntilSuccess(t *testing.T) {
	m := new(Mock)
	m.On("Task").Twice().Return(true, errRetryable)
	m.On("Task").Once().Return(false, nil)

	err := fast().Start(context.Background(), "TestRetryUntilSuccess", m.Task)

	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "Task", 3)
}

func TestCancelReturnsCause(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(true, errRetryable)

	cause := errors.New("session closed")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	r := &retry.ExponentialBackoff{MinInterval: time.Hour}
	err := r.Start(ctx, "TestCancelReturnsCause", m.Task)

	require.ErrorIs(t, err, cause)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestDelay(t *testing.T) {
	r := retry.ExponentialBackoff{
		MinInterval: 100 * time.Millisecond,
		MaxInterval: time.Second,
	}
	require.Equal(t, 100*time.Millisecond, r.Delay(1))
	require.Equal(t, 200*time.Millisecond, r.Delay(2))
	require.Equal(t, 400*time.Millisecond, r.Delay(3))
	require.Equal(t, 800*time.Millisecond, r.Delay(4))
	require.Equal(t, time.Second, r.Delay(5))
	require.Equal(t, time.Second, r.Delay(64))

	var defaults retry.ExponentialBackoff
	require.Equal(t, time.Second/8, defaults.Delay(1))
	require.Equal(t, 30*time.Second, defaults.Delay(100))
}
