// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"sync"
)

// Token is the completion handle of an operation. It is resolved exactly once
// with a ReasonCode; a caller may block on it with Wait, select on Done, or
// register a continuation with Then.
type Token struct {
	id    OperationID
	kind  OperationKind
	topic string

	mu       sync.Mutex
	settled  bool
	code     ReasonCode
	then     []func(ReasonCode)
	done     chan struct{}
	rejected string
}

func newToken(op *operation) *Token {
	return &Token{
		id:    op.id,
		kind:  op.kind,
		topic: op.topic,
		done:  make(chan struct{}),
	}
}

// rejectedToken returns a token that is already resolved with a local reason
// code. It carries no operation ID, since nothing was submitted.
func rejectedToken(
	kind OperationKind,
	topic string,
	code ReasonCode,
	msg string,
) *Token {
	t := &Token{
		kind:     kind,
		topic:    topic,
		settled:  true,
		code:     code,
		done:     make(chan struct{}),
		rejected: msg,
	}
	close(t.done)
	return t
}

// ID returns the operation ID, or zero if the call was rejected before an
// operation was created.
func (t *Token) ID() OperationID {
	return t.id
}

// Kind returns the kind of the operation.
func (t *Token) Kind() OperationKind {
	return t.kind
}

// Topic returns the target topic, if the operation has one.
func (t *Token) Topic() string {
	return t.topic
}

// Done returns a channel that is closed once the token is resolved.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the token is resolved or the context is done. The
// returned error is only ever a context error; failures of the operation
// itself are reported by the ReasonCode.
func (t *Token) Wait(ctx context.Context) (ReasonCode, error) {
	select {
	case <-t.done:
		return t.code, nil
	case <-ctx.Done():
		return 0, context.Cause(ctx)
	}
}

// ReasonCode returns the resolved code, if the token has been resolved.
func (t *Token) ReasonCode() (ReasonCode, bool) {
	select {
	case <-t.done:
		return t.code, true
	default:
		return 0, false
	}
}

// Err returns the failure as an *Error, or nil if the token is unresolved or
// the operation succeeded.
func (t *Token) Err() error {
	code, ok := t.ReasonCode()
	if !ok || code.Succeeded() {
		return nil
	}
	return &Error{Code: code, Kind: t.kind, Message: t.rejected}
}

// Then registers a continuation that receives the reason code once the token
// is resolved. Continuations run on the dispatch path in registration order;
// if the token is already resolved, fn runs immediately on the calling
// goroutine. Continuations must not block on other tokens.
func (t *Token) Then(fn func(ReasonCode)) {
	t.mu.Lock()
	if !t.settled {
		t.then = append(t.then, fn)
		t.mu.Unlock()
		return
	}
	code := t.code
	t.mu.Unlock()
	fn(code)
}

// resolve records the code, runs continuations, then releases waiters. It
// must only be called once per token, which the operation tracker guarantees.
func (t *Token) resolve(code ReasonCode) {
	t.mu.Lock()
	t.settled = true
	t.code = code
	then := t.then
	t.then = nil
	t.mu.Unlock()

	for _, fn := range then {
		fn(code)
	}
	close(t.done)
}
