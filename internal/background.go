// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"sync"
)

// Background represents the lifetime of a long-running background process
// (a network connection, a reconnect loop) which contexts may need to tie to.
type Background struct {
	err   error
	done  chan struct{}
	close func()
}

// NewBackground creates a running background; contexts derived from it with
// With are cancelled with err as their cause once it is closed.
func NewBackground(err error) *Background {
	done := make(chan struct{})
	return &Background{err, done, sync.OnceFunc(func() { close(done) })}
}

// With derives a context that is cancelled when either the parent is done or
// the background is closed.
func (b *Background) With(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-b.done:
			cancel(b.err)
		case <-c.Done():
		}
	}()
	return c, func() { cancel(context.Canceled) }
}

// Close stops the background. Calling it more than once is a no-op.
func (b *Background) Close() {
	b.close()
}

// Done is closed once the background has been closed.
func (b *Background) Done() <-chan struct{} {
	return b.done
}

// Closed reports whether the background has been closed.
func (b *Background) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
