// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/disco-iot/mqtt"
)

// SIGUSR1 reports the network as restored and SIGUSR2 as lost, standing in
// for the link events of a real network interface.
func notifyNetworkSignals(sig chan<- os.Signal) {
	signal.Notify(sig, syscall.SIGUSR1, syscall.SIGUSR2)
}

func forwardNetworkSignal(client *mqtt.SessionClient, s os.Signal) bool {
	switch s {
	case syscall.SIGUSR1:
		client.NotifyNetworkRestored()
	case syscall.SIGUSR2:
		client.NotifyNetworkLost()
	default:
		return false
	}
	return true
}
