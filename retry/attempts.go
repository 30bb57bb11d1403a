// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/disco-iot/mqtt/internal/log"
	"github.com/disco-iot/mqtt/internal/wallclock"
)

// schedule returns the wait after a failed attempt, or false once the policy
// has no attempts left.
type schedule func(attempt uint64) (time.Duration, bool)

// attempts runs task until it succeeds, reports a non-retryable error, ctx is
// done or next gives up.
func attempts(
	ctx context.Context,
	name string,
	lg *slog.Logger,
	task Task,
	next schedule,
) error {
	l := logger{log.Wrap(lg)}

	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		switch {
		case err == nil:
			l.complete(ctx, name, attempt, nil)
			return nil
		case !retry:
			l.complete(ctx, name, attempt, err)
			return err
		case ctx.Err() != nil:
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}

		interval, ok := next(attempt)
		if !ok {
			l.complete(ctx, name, attempt, err)
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		l.wait(ctx, name, interval, err)
		select {
		case <-wallclock.Instance.After(interval):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}
