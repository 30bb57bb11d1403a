// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"sync"
	"sync/atomic"
)

// Background is an abstraction of a long-running background process which
// contexts may need to tie to. Closing it cancels every derived context with
// the background's error.
type Background struct {
	err    error
	done   chan struct{}
	closed atomic.Bool
	close  func()
}

func NewBackground(err error) *Background {
	b := &Background{err: err, done: make(chan struct{})}
	b.close = sync.OnceFunc(func() {
		b.closed.Store(true)
		close(b.done)
	})
	return b
}

// With derives a context that is cancelled when the background closes.
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

func (b *Background) Close() {
	b.close()
}

// Closed reports whether Close has been called without blocking.
func (b *Background) Closed() bool {
	return b.closed.Load()
}

func (b *Background) Done() <-chan struct{} {
	return b.done
}
