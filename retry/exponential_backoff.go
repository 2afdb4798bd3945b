// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Azure/mqttsession/internal/log"
	"github.com/Azure/mqttsession/internal/wallclock"
)

// ExponentialBackoff paces repeated attempts of a task (typically a
// reconnect), doubling the wait after every failure up to a ceiling.
type ExponentialBackoff struct {
	// MaxAttempts bounds the number of attempts. Zero means unlimited; one
	// disables retries.
	MaxAttempts uint64

	// MinInterval is the wait after the first failure. Defaults to 1/8s.
	MinInterval time.Duration

	// MaxInterval caps the wait between attempts. Defaults to 30s.
	MaxInterval time.Duration

	// Timeout bounds the total time spent across all attempts.
	Timeout time.Duration

	// NoJitter disables the randomization of waits.
	NoJitter bool

	// Logger receives a record for every failed attempt and for the outcome.
	Logger *slog.Logger
}

const (
	defaultMinInterval = time.Second / 8
	defaultMaxInterval = 30 * time.Second
)

// Start runs task until it succeeds, reports that it should not be retried,
// runs out of attempts, or ctx is done. The error is that of the last attempt,
// or the cause of ctx if it ended the loop.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	l := logger{log.Wrap(e.Logger)}

	for attempt := uint64(1); ; attempt++ {
		retry, err := task(ctx)
		switch {
		case err == nil:
			l.succeeded(ctx, name, attempt)
			return nil
		case !retry:
			l.abandoned(ctx, name, attempt, err)
			return err
		case attempt == e.MaxAttempts:
			l.exhausted(ctx, name, attempt, err)
			return err
		}

		delay := e.Delay(attempt)
		if !e.NoJitter {
			delay = jitter(delay)
		}
		l.waiting(ctx, name, attempt, delay, err)

		select {
		case <-wallclock.Instance.After(delay):
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// Delay returns the wait, before jitter, that follows the given failed
// attempt.
func (e *ExponentialBackoff) Delay(attempt uint64) time.Duration {
	lo := e.MinInterval
	if lo <= 0 {
		lo = defaultMinInterval
	}
	hi := e.MaxInterval
	if hi <= 0 {
		hi = defaultMaxInterval
	}

	d := lo
	for i := uint64(1); i < attempt && d < hi; i++ {
		d *= 2
	}
	return min(d, hi)
}

// jitter spreads d over 95% to 105% so that clients dropped together do not
// reconnect in lockstep.
func jitter(d time.Duration) time.Duration {
	// #nosec G404
	return time.Duration(float64(d) * (.95 + .1*rand.Float64()))
}
