// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlersOrder(t *testing.T) {
	h := NewHandlers[int]()
	h.Register(1)
	h.Register(2)
	h.Register(3)

	require.Equal(t, []int{1, 2, 3}, slices.Collect(h.All()))
	require.Equal(t, 3, h.Len())
}

func TestHandlersRemove(t *testing.T) {
	h := NewHandlers[string]()
	removeFirst := h.Register("first")
	h.Register("middle")
	removeLast := h.Register("last")

	removeFirst()
	require.Equal(t, []string{"middle", "last"}, slices.Collect(h.All()))

	removeLast()
	require.Equal(t, []string{"middle"}, slices.Collect(h.All()))

	// Second removal must not disturb the remaining handlers.
	removeLast()
	removeFirst()
	require.Equal(t, []string{"middle"}, slices.Collect(h.All()))
	require.Equal(t, 1, h.Len())

	h.Register("again")
	require.Equal(t, []string{"middle", "again"}, slices.Collect(h.All()))
}

func TestHandlersEarlyBreak(t *testing.T) {
	h := NewHandlers[int]()
	for i := range 5 {
		h.Register(i)
	}

	var seen []int
	for v := range h.All() {
		seen = append(seen, v)
		if v == 1 {
			break
		}
	}
	require.Equal(t, []int{0, 1}, seen)
}
