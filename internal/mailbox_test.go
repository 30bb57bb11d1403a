// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxEmpty(t *testing.T) {
	m := NewMailbox[int]()
	_, ok := m.Take()
	require.False(t, ok)
}

func TestMailboxOverwrite(t *testing.T) {
	m := NewMailbox[int]()
	require.False(t, m.Put(1))
	require.True(t, m.Put(2))

	v, ok := m.Take()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = m.Take()
	require.False(t, ok)
}

func TestMailboxReady(t *testing.T) {
	m := NewMailbox[string]()
	m.Put("a")
	m.Put("b")

	select {
	case <-m.Ready():
	default:
		require.Fail(t, "expected ready signal")
	}

	select {
	case <-m.Ready():
		require.Fail(t, "ready signal should coalesce")
	default:
	}

	v, ok := m.Take()
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestMailboxConcurrentProducers(t *testing.T) {
	m := NewMailbox[int]()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				m.Put(i*100 + j)
			}
		}()
	}
	wg.Wait()

	_, ok := m.Take()
	require.True(t, ok)
	_, ok = m.Take()
	require.False(t, ok)
}
