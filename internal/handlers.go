// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"iter"
	"sync"
)

type handlerNode[T any] struct {
	value T
	prev  *handlerNode[T]
	next  *handlerNode[T]
}

// Handlers is an ordered set of callbacks where each registration returns its
// own removal function. Iteration holds a read lock, so handlers must not
// register or remove from within a callback.
type Handlers[T any] struct {
	mu    sync.RWMutex
	first *handlerNode[T]
	last  *handlerNode[T]
	count int
}

func NewHandlers[T any]() *Handlers[T] {
	return &Handlers[T]{}
}

// Register appends a handler and returns a function removing it. Calling the
// removal more than once is a no-op.
func (h *Handlers[T]) Register(value T) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node := &handlerNode[T]{value: value, prev: h.last}
	if h.last == nil {
		h.first = node
	} else {
		h.last.next = node
	}
	h.last = node
	h.count++

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if node == nil {
			return
		}

		if node.prev == nil {
			h.first = node.next
		} else {
			node.prev.next = node.next
		}
		if node.next == nil {
			h.last = node.prev
		} else {
			node.next.prev = node.prev
		}
		h.count--

		node = nil
	}
}

// Len returns the number of registered handlers.
func (h *Handlers[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// All iterates the handlers in registration order.
func (h *Handlers[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		for curr := h.first; curr != nil && yield(curr.value); {
			curr = curr.next
		}
	}
}
