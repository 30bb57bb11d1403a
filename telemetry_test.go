// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxKeepsLatest(t *testing.T) {
	box := NewMailbox()

	_, ok := box.LatestSnapshot()
	require.False(t, ok)

	require.False(t, box.Put(Snapshot{"count": 1}))
	require.True(t, box.Put(Snapshot{"count": 2}))

	s, ok := box.LatestSnapshot()
	require.True(t, ok)
	require.Equal(t, Snapshot{"count": 2}, s)

	_, ok = box.LatestSnapshot()
	require.False(t, ok)
}

func TestMailboxConcurrentProducer(t *testing.T) {
	box := NewMailbox()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			box.Put(Snapshot{"count": i})
		}
	}()

	// Whatever the interleaving, each taken snapshot is newer than the last.
	last := -1
	for {
		s, ok := box.LatestSnapshot()
		if ok {
			n := s["count"].(int)
			require.Greater(t, n, last)
			last = n
		}
		if last == 999 {
			break
		}
	}
	wg.Wait()
}
