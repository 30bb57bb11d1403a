// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a session client. A nil
// *Metrics records nothing.
type Metrics struct {
	ConnectAttempts *prometheus.CounterVec
	Sessions        prometheus.Counter
	Publishes       *prometheus.CounterVec
	InFlight        prometheus.Gauge
	KeepAlivePings  prometheus.Counter
	Commands        *prometheus.CounterVec
	UnmatchedAcks   prometheus.Counter
}

// NewMetrics creates the session client collectors and registers them with
// reg. A nil registerer creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_session_connect_attempts_total",
			Help: "Connection attempts by result.",
		}, []string{"result"}),
		Sessions: f.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_session_established_total",
			Help: "Sessions that received a positive CONNACK.",
		}),
		Publishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_session_publishes_total",
			Help: "Telemetry messages sent, by QoS.",
		}, []string{"qos"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_session_in_flight_messages",
			Help: "Messages with an incomplete acknowledgment exchange.",
		}),
		KeepAlivePings: f.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_session_pingreq_total",
			Help: "PINGREQ packets sent.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_session_commands_total",
			Help: "Commands received, by name; unknown ones are pooled.",
		}, []string{"command"}),
		UnmatchedAcks: f.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_session_unmatched_acks_total",
			Help: "Acknowledgments discarded for lack of a matching exchange.",
		}),
	}
}

func (m *Metrics) connectAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case isFatal(err):
		result = "fatal"
	default:
		result = "failure"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) sessionEstablished() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) published(qos byte) {
	if m != nil {
		m.Publishes.WithLabelValues(strconv.Itoa(int(qos))).Inc()
	}
}

func (m *Metrics) inFlight(n int) {
	if m != nil {
		m.InFlight.Set(float64(n))
	}
}

func (m *Metrics) keepAlivePing() {
	if m != nil {
		m.KeepAlivePings.Inc()
	}
}

func (m *Metrics) command(name string, known bool) {
	if m == nil {
		return
	}
	if !known {
		name = "unknown"
	}
	m.Commands.WithLabelValues(name).Inc()
}

func (m *Metrics) unmatchedAck() {
	if m != nil {
		m.UnmatchedAcks.Inc()
	}
}
