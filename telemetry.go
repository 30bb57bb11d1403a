// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "github.com/disco-iot/mqtt/internal"

type (
	// Snapshot is a flat telemetry record. It is published as a JSON object
	// with one member per entry, so values should be strings, numbers or
	// booleans.
	Snapshot map[string]any

	// DataSource supplies the most recent telemetry snapshot without
	// blocking. It reports false when nothing new is available.
	DataSource interface {
		LatestSnapshot() (Snapshot, bool)
	}

	// Mailbox is a single-slot DataSource for a producer running in its own
	// goroutine. Put never blocks and replaces a snapshot the publisher has
	// not yet taken; each snapshot is published at most once.
	Mailbox struct {
		slot *internal.Mailbox[Snapshot]
	}
)

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{slot: internal.NewMailbox[Snapshot]()}
}

// Put stores a snapshot, reporting whether an untaken one was evicted.
func (m *Mailbox) Put(s Snapshot) (evicted bool) {
	return m.slot.Put(s)
}

// LatestSnapshot takes the pending snapshot, if any.
func (m *Mailbox) LatestSnapshot() (Snapshot, bool) {
	return m.slot.Take()
}
