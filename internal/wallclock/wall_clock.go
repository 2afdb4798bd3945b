// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"time"
)

type (
	// WallClock abstracts the subset of package time used by the session
	// client, so that tests can control apparent time.
	WallClock interface {
		AfterFunc(d time.Duration, f func()) Timer
		After(d time.Duration) <-chan time.Time
		Now() time.Time
	}

	// Timer abstracts the functionality of time.Timer.
	Timer interface {
		Stop() bool
	}

	wallClock struct{}
)

// AfterFunc indirects time.AfterFunc.
func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// Instance is a WallClock singleton used for indirect time-based references to
// package time. Test code can set the instance to interpose on functions and
// control apparent time.
var Instance WallClock = wallClock{}
