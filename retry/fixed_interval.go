// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// FixedInterval implements a retry policy with a bounded number of attempts
// separated by a constant wait.
type FixedInterval struct {
	// MaxAttempts sets the maximum number of attempts. Will be set to a
	// default of 5 if unspecified.
	MaxAttempts uint64

	// Interval is the wait between attempts. Will be set to a default of 5s if
	// unspecified.
	Interval time.Duration

	// Logger provides a logger which will be used to log retry attempts and
	// results.
	Logger *slog.Logger
}

const (
	defaultFixedAttempts = 5
	defaultFixedInterval = 5 * time.Second
)

// Start runs task until it succeeds or MaxAttempts attempts have failed.
func (f *FixedInterval) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	maxAttempts := f.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultFixedAttempts
	}
	interval := f.Interval
	if interval == 0 {
		interval = defaultFixedInterval
	}

	return attempts(ctx, name, f.Logger, task,
		func(attempt uint64) (time.Duration, bool) {
			return interval, attempt < maxAttempts
		},
	)
}
