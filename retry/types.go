// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import "context"

type (
	// Task is one attempt. A nil error ends the retries; otherwise retry
	// reports whether the error is worth another attempt.
	Task = func(ctx context.Context) (retry bool, err error)

	// Policy decides whether and when a failed task is attempted again. The
	// session client runs its automatic reconnection through one; name only
	// labels the log records.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}
)

// Compile-time check that the backoff is a Policy.
var _ Policy = (*ExponentialBackoff)(nil)
