// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"sync"
	"time"
)

type (
	// Fake is a manually advanced WallClock for tests. Timers created through
	// After fire when Advance moves the clock past their deadline.
	Fake struct {
		mu      sync.Mutex
		now     time.Time
		waiters []fakeWaiter
	}

	fakeWaiter struct {
		at time.Time
		c  chan time.Time
	}
)

// NewFake creates a fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Set installs the fake as Instance and returns a function restoring the
// previous clock.
func (f *Fake) Set() (restore func()) {
	prev := Instance
	Instance = f
	return func() { Instance = prev }
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives once the fake clock has been advanced
// by at least d. Non-positive durations fire immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := make(chan time.Time, 1)
	if d <= 0 {
		c <- f.now
		return c
	}
	f.waiters = append(f.waiters, fakeWaiter{f.now.Add(d), c})
	return c
}

// WithTimeout returns a context cancelled once the fake clock passes the
// timeout, or when the parent is done.
func (f *Fake) WithTimeout(
	parent context.Context,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	expired := f.After(timeout)
	go func() {
		select {
		case <-expired:
			cancel(context.DeadlineExceeded)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// Advance moves the clock forward by d and fires any expired waiters.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var fired []fakeWaiter
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if w.at.After(now) {
			pending = append(pending, w)
		} else {
			fired = append(fired, w)
		}
	}
	f.waiters = pending
	f.mu.Unlock()

	for _, w := range fired {
		w.c <- now
	}
}

// Waiters returns the number of timers that have not fired yet.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}
