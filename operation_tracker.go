// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Azure/mqttsession/internal/wallclock"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// Resolved operation IDs are remembered for a while so that late or
	// duplicate resolutions can be reported as such.
	resolvedHistorySize = 1024
	resolvedHistoryTTL  = 5 * time.Minute
)

// operationTracker maps operation IDs to outstanding operations. Each entry is
// claimed exactly once, by whichever of the acknowledgement, timeout, or sweep
// paths gets there first; unrelated IDs never contend on a shared lock.
type operationTracker struct {
	next     atomic.Uint64
	count    atomic.Int64
	pending  sync.Map
	resolved *expirable.LRU[OperationID, ReasonCode]

	// Called when an operation's deadline passes.
	expire func(OperationID)

	log logger
}

func newOperationTracker(
	log logger,
	expire func(OperationID),
) *operationTracker {
	return &operationTracker{
		resolved: expirable.NewLRU[OperationID, ReasonCode](
			resolvedHistorySize,
			nil,
			resolvedHistoryTTL,
		),
		expire: expire,
		log:    log,
	}
}

// submit assigns the operation an ID, stores it, and arms its deadline (if
// timeout is positive).
func (t *operationTracker) submit(
	op *operation,
	timeout time.Duration,
) *Token {
	op.id = OperationID(t.next.Add(1))
	op.token = newToken(op)

	// Hold the timer lock across publication so that a claim racing the
	// deadline (or the deadline itself) stops the timer only once it is set.
	op.timerMu.Lock()
	t.pending.Store(op.id, op)
	t.count.Add(1)
	if timeout > 0 && t.expire != nil {
		id := op.id
		op.timer = wallclock.Instance.AfterFunc(timeout, func() {
			t.expire(id)
		})
	}
	op.timerMu.Unlock()

	t.log.submitted(op)
	return op.token
}

// claim removes the operation from the tracker if it has not already been
// claimed. The caller that receives it is responsible for resolving its token.
func (t *operationTracker) claim(
	id OperationID,
	code ReasonCode,
) (*operation, bool) {
	v, ok := t.pending.Load(id)
	if !ok {
		if prev, ok := t.resolved.Get(id); ok {
			t.log.doubleResolve(id, code,
				slog.String("previous_reason", prev.String()),
			)
		} else {
			t.log.Log(context.Background(), slog.LevelWarn,
				"resolution for unknown operation",
				slog.Uint64("operation_id", uint64(id)),
				slog.String("reason", code.String()),
			)
		}
		return nil, false
	}

	op := v.(*operation)
	if !op.claimed.CompareAndSwap(false, true) {
		t.log.doubleResolve(id, code)
		return nil, false
	}

	op.stopTimer()
	t.resolved.Add(id, code)
	t.pending.Delete(id)
	t.count.Add(-1)
	t.log.resolved(op, code)
	return op, true
}

// sweep claims every outstanding operation with the given code, in submission
// order.
func (t *operationTracker) sweep(code ReasonCode) []*operation {
	var ids []OperationID
	t.pending.Range(func(k, _ any) bool {
		ids = append(ids, k.(OperationID))
		return true
	})
	slices.Sort(ids)

	ops := make([]*operation, 0, len(ids))
	for _, id := range ids {
		// Skip operations that another path claimed in the meantime; that
		// is the expected race and is not worth a warning.
		v, ok := t.pending.Load(id)
		if !ok || v.(*operation).claimed.Load() {
			continue
		}
		if op, ok := t.claim(id, code); ok {
			ops = append(ops, op)
		}
	}
	if len(ops) > 0 {
		t.log.swept(len(ops), code)
	}
	return ops
}

// outstanding returns the number of operations that have not been claimed.
func (t *operationTracker) outstanding() int {
	return int(t.count.Load())
}
