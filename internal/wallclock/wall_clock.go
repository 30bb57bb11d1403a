// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock abstracts the subset of packages context and time that the
	// session client depends on, so tests can control apparent time.
	WallClock interface {
		WithTimeout(
			parent context.Context,
			timeout time.Duration,
		) (context.Context, context.CancelFunc)
		After(d time.Duration) <-chan time.Time
		Now() time.Time
	}

	wallClock struct{}
)

// WithTimeout indirects context.WithTimeout.
func (wallClock) WithTimeout(
	parent context.Context,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// Until returns the duration until t according to the current Instance,
// clamped at zero.
func Until(t time.Time) time.Duration {
	return max(0, t.Sub(Instance.Now()))
}

// Instance is a WallClock singleton used for indirect time-based references to
// packages context and time. Test code can set the instance to interpose on
// functions and control apparent time.
var Instance WallClock = wallClock{}
