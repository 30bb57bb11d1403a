// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"time"

	"github.com/disco-iot/mqtt"
)

// sensorWrap is where the simulated counter restarts from zero.
const sensorWrap = 1000

// Sensor simulates a counter-driven temperature and humidity sensor.
type Sensor struct {
	unit    string
	counter int
	now     func() time.Time
}

// NewSensor creates a sensor reporting in the given unit.
func NewSensor(unit string) *Sensor {
	return &Sensor{unit: unit, now: time.Now}
}

// Sample takes the next reading.
func (s *Sensor) Sample() mqtt.Snapshot {
	snap := mqtt.Snapshot{
		"unit":        s.unit,
		"temperature": s.counter,
		"humidity":    s.counter * 2,
		"timestamp":   s.now().UnixMilli(),
	}
	s.counter = (s.counter + 1) % sensorWrap
	return snap
}

// Produce samples into box every interval until ctx is done. Readings the
// session client has not yet taken are replaced by newer ones.
func (s *Sensor) Produce(
	ctx context.Context,
	box *mqtt.Mailbox,
	interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	box.Put(s.Sample())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			box.Put(s.Sample())
		}
	}
}
