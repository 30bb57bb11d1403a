// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/disco-iot/mqtt"
	"github.com/fatih/color"
)

type (
	// Board is the virtual LED board of the node: a user LED driven by
	// commands, and network and error LEDs driven by the session status.
	Board struct {
		mu      sync.Mutex
		out     io.Writer
		log     *slog.Logger
		user    bool
		network mqtt.Status
		fault   bool
	}

	ledColor = func(format string, a ...any) string
)

var (
	ledOff   ledColor = color.New(color.FgHiBlack).Sprintf
	ledGreen ledColor = color.New(color.FgGreen, color.Bold).Sprintf
	ledAmber ledColor = color.New(color.FgYellow, color.Bold).Sprintf
	ledRed   ledColor = color.New(color.FgRed, color.Bold).Sprintf
	ledBlue  ledColor = color.New(color.FgBlue, color.Bold).Sprintf
)

// NewBoard creates a board that renders to out.
func NewBoard(out io.Writer, log *slog.Logger) *Board {
	return &Board{out: out, log: log}
}

// Commands returns the command table served by the board.
func (b *Board) Commands() mqtt.CommandTable {
	return mqtt.CommandTable{
		"led_on":  func() { b.setUser(true) },
		"led_off": func() { b.setUser(false) },
		"status":  b.reportStatus,
	}
}

// OnStatus tracks session status changes on the network and error LEDs.
func (b *Board) OnStatus(ev *mqtt.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.network = ev.Status
	b.fault = ev.Status == mqtt.StatusFatal
	b.render()
}

func (b *Board) setUser(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.user = on
	b.render()
}

func (b *Board) reportStatus() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.log.Info("device ready",
		slog.Bool("led", b.user),
		slog.String("network", b.network.String()),
		slog.Bool("error", b.fault),
	)
}

func (b *Board) render() {
	user := ledOff
	if b.user {
		user = ledBlue
	}

	var network ledColor
	switch b.network {
	case mqtt.StatusConnected:
		network = ledGreen
	case mqtt.StatusConnecting:
		network = ledAmber
	default:
		network = ledOff
	}

	fault := ledOff
	if b.fault {
		fault = ledRed
	}

	_, _ = fmt.Fprintf(b.out, "%s %s %s\n",
		user("[led]"),
		network("[net]"),
		fault("[err]"),
	)
}
