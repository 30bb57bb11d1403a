// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

//go:build !unix

package main

import (
	"os"

	"github.com/disco-iot/mqtt"
)

func notifyNetworkSignals(chan<- os.Signal) {}

func forwardNetworkSignal(*mqtt.SessionClient, os.Signal) bool {
	return false
}
