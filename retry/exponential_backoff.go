// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/disco-iot/mqtt/internal/wallclock"
)

// ExponentialBackoff doubles the wait after every failed attempt, from
// MinInterval up to MaxInterval, with up to 5% jitter either way.
type ExponentialBackoff struct {
	// MaxAttempts bounds the attempts per retry budget; 0 means unlimited.
	MaxAttempts uint64

	// MinInterval defaults to 1s.
	MinInterval time.Duration

	// MaxInterval defaults to 2m.
	MaxInterval time.Duration

	// Timeout bounds a whole retry budget, including waits.
	Timeout time.Duration

	NoJitter bool

	Logger *slog.Logger
}

const (
	defaultBackoffMin = time.Second
	defaultBackoffMax = 2 * time.Minute
)

// Start runs task until it succeeds, MaxAttempts attempts have failed or
// Timeout has elapsed.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = wallclock.Instance.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	return attempts(ctx, name, e.Logger, task,
		func(attempt uint64) (time.Duration, bool) {
			if e.MaxAttempts > 0 && attempt >= e.MaxAttempts {
				return 0, false
			}
			return e.interval(attempt), true
		},
	)
}

// interval is the wait after the given failed attempt.
func (e *ExponentialBackoff) interval(attempt uint64) time.Duration {
	lo := e.MinInterval
	if lo == 0 {
		lo = defaultBackoffMin
	}
	hi := max(e.MaxInterval, lo)
	if e.MaxInterval == 0 {
		hi = max(defaultBackoffMax, lo)
	}

	d := lo
	for range min(attempt-1, 62) {
		if d >= hi/2 {
			d = hi
			break
		}
		d *= 2
	}

	if !e.NoJitter {
		// #nosec G404
		d = time.Duration(float64(d) * (0.95 + 0.1*rand.Float64()))
	}
	return d
}
