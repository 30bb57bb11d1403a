// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import "sync"

// Mailbox is a single-slot, overwrite-on-full handoff between goroutines. Put
// never blocks and replaces any value not yet taken; Take never blocks and
// empties the slot.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
	ready chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put stores the value, reporting whether an untaken value was discarded.
func (m *Mailbox[T]) Put(value T) (overwritten bool) {
	m.mu.Lock()
	overwritten = m.full
	m.value = value
	m.full = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return overwritten
}

// Take removes and returns the stored value, if any.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if !m.full {
		return zero, false
	}
	value := m.value
	m.value = zero
	m.full = false
	return value, true
}

// Ready is signalled after a Put. A signal may be stale if the value was
// already taken, so receivers should follow up with Take.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}
