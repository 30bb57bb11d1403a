// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsConnectAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.connectAttempt(nil)
	m.connectAttempt(&ConnectionError{message: "refused"})
	m.connectAttempt(&ConnackError{ReasonCode: connackServerBusy})
	m.connectAttempt(&FatalConnackError{ReasonCode: connackBanned})

	attempts := func(result string) float64 {
		return testutil.ToFloat64(m.ConnectAttempts.WithLabelValues(result))
	}
	require.Equal(t, 1.0, attempts("success"))
	require.Equal(t, 2.0, attempts("failure"))
	require.Equal(t, 1.0, attempts("fatal"))

	count, err := testutil.GatherAndCount(
		reg,
		"mqtt_session_connect_attempts_total",
	)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestMetricsUnregistered(t *testing.T) {
	m := NewMetrics(nil)
	m.published(2)
	m.inFlight(4)
	require.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues("2")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.InFlight))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.connectAttempt(nil)
		m.sessionEstablished()
		m.published(1)
		m.inFlight(1)
		m.keepAlivePing()
		m.command("led_on", true)
		m.unmatchedAck()
	})
}
