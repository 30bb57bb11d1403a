// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"log/slog"
	"time"

	"github.com/disco-iot/mqtt/internal/options"
	"github.com/disco-iot/mqtt/retry"
)

type (
	// SessionClientOption represents a single option for the session client.
	SessionClientOption interface{ sessionClient(*SessionClientOptions) }

	// SessionClientOptions are the resolved options for the session client.
	// Zero values select the defaults documented on each field.
	SessionClientOptions struct {
		// ClientID defaults to a random identifier.
		ClientID   string
		CleanStart bool
		Username   string
		Password   []byte

		// KeepAlive must be between 10s and 120s; defaults to 10s.
		KeepAlive time.Duration
		// KeepAliveMargin is subtracted from KeepAlive when scheduling
		// PINGREQ; defaults to a tenth of KeepAlive.
		KeepAliveMargin time.Duration

		// ConnectTimeout bounds the wait for CONNACK; defaults to 5s.
		ConnectTimeout time.Duration
		// ConnectionRetry defaults to 5 attempts 5s apart.
		ConnectionRetry retry.Policy
		// ReconnectDelay is the wait before a new retry budget after an
		// established session is lost; defaults to 15s.
		ReconnectDelay time.Duration
		// MaxPollInterval caps each poll so shutdown and network events are
		// noticed promptly; defaults to 1s.
		MaxPollInterval time.Duration

		TelemetryTopic string
		TelemetryQoS   byte
		// PublishInterval defaults to 60s.
		PublishInterval time.Duration
		// StabilizationWindow delays the first publish of each session;
		// defaults to 5s.
		StabilizationWindow time.Duration
		// DataSource supplies telemetry; no telemetry is sent if unset.
		DataSource DataSource

		CommandTopic string
		CommandQoS   byte
		Commands     CommandTable

		Metrics *Metrics
		Logger  *slog.Logger
	}

	// WithClientID sets the MQTT client identifier.
	WithClientID string

	// WithCleanStart sets the CONNECT clean start flag.
	WithCleanStart bool

	// WithUsername sets the CONNECT username.
	WithUsername string

	// WithPassword sets the CONNECT password.
	WithPassword []byte

	// WithKeepAlive sets the keep-alive interval (with second precision).
	WithKeepAlive time.Duration

	// WithKeepAliveMargin sets how long before the keep-alive deadline a
	// PINGREQ is sent.
	WithKeepAliveMargin time.Duration

	// WithConnectTimeout sets how long to wait for CONNACK.
	WithConnectTimeout time.Duration

	// WithReconnectDelay sets the wait after losing an established session.
	WithReconnectDelay time.Duration

	// WithMaxPollInterval caps a single wait of the run loop.
	WithMaxPollInterval time.Duration

	// WithTelemetryTopic sets the topic telemetry is published on.
	WithTelemetryTopic string

	// WithTelemetryQoS sets the QoS of telemetry publishes.
	WithTelemetryQoS byte

	// WithPublishInterval sets the telemetry cadence.
	WithPublishInterval time.Duration

	// WithStabilizationWindow sets the delay between CONNACK and the first
	// telemetry publish.
	WithStabilizationWindow time.Duration

	// WithCommandTopic sets the topic commands are received on.
	WithCommandTopic string

	// WithCommandQoS sets the QoS of the command subscription.
	WithCommandQoS byte

	// WithCommands sets the command table.
	WithCommands CommandTable

	withConnectionRetry struct{ retry.Policy }
	withDataSource      struct{ DataSource }
	withMetrics         struct{ *Metrics }
	withLogger          struct{ *slog.Logger }
)

// WithConnectionRetry sets the retry policy for connection attempts.
func WithConnectionRetry(policy retry.Policy) SessionClientOption {
	return withConnectionRetry{policy}
}

// WithDataSource sets where telemetry snapshots come from.
func WithDataSource(source DataSource) SessionClientOption {
	return withDataSource{source}
}

// WithMetrics enables Prometheus metrics. See NewMetrics.
func WithMetrics(metrics *Metrics) SessionClientOption {
	return withMetrics{metrics}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) SessionClientOption {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *SessionClientOptions) Apply(
	opts []SessionClientOption,
	rest ...SessionClientOption,
) {
	for opt := range options.Apply[SessionClientOption](opts, rest...) {
		opt.sessionClient(o)
	}
}

func (o *SessionClientOptions) sessionClient(opt *SessionClientOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithClientID) sessionClient(opt *SessionClientOptions) {
	opt.ClientID = string(o)
}

func (o WithCleanStart) sessionClient(opt *SessionClientOptions) {
	opt.CleanStart = bool(o)
}

func (o WithUsername) sessionClient(opt *SessionClientOptions) {
	opt.Username = string(o)
}

func (o WithPassword) sessionClient(opt *SessionClientOptions) {
	opt.Password = []byte(o)
}

func (o WithKeepAlive) sessionClient(opt *SessionClientOptions) {
	opt.KeepAlive = time.Duration(o)
}

func (o WithKeepAliveMargin) sessionClient(opt *SessionClientOptions) {
	opt.KeepAliveMargin = time.Duration(o)
}

func (o WithConnectTimeout) sessionClient(opt *SessionClientOptions) {
	opt.ConnectTimeout = time.Duration(o)
}

func (o WithReconnectDelay) sessionClient(opt *SessionClientOptions) {
	opt.ReconnectDelay = time.Duration(o)
}

func (o WithMaxPollInterval) sessionClient(opt *SessionClientOptions) {
	opt.MaxPollInterval = time.Duration(o)
}

func (o WithTelemetryTopic) sessionClient(opt *SessionClientOptions) {
	opt.TelemetryTopic = string(o)
}

func (o WithTelemetryQoS) sessionClient(opt *SessionClientOptions) {
	opt.TelemetryQoS = byte(o)
}

func (o WithPublishInterval) sessionClient(opt *SessionClientOptions) {
	opt.PublishInterval = time.Duration(o)
}

func (o WithStabilizationWindow) sessionClient(opt *SessionClientOptions) {
	opt.StabilizationWindow = time.Duration(o)
}

func (o WithCommandTopic) sessionClient(opt *SessionClientOptions) {
	opt.CommandTopic = string(o)
}

func (o WithCommandQoS) sessionClient(opt *SessionClientOptions) {
	opt.CommandQoS = byte(o)
}

func (o WithCommands) sessionClient(opt *SessionClientOptions) {
	opt.Commands = CommandTable(o)
}

func (o withConnectionRetry) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionRetry = o.Policy
}

func (o withDataSource) sessionClient(opt *SessionClientOptions) {
	opt.DataSource = o.DataSource
}

func (o withMetrics) sessionClient(opt *SessionClientOptions) {
	opt.Metrics = o.Metrics
}

func (o withLogger) sessionClient(opt *SessionClientOptions) {
	opt.Logger = o.Logger
}

// validate checks option values that have no sensible fallback.
func (o *SessionClientOptions) validate() error {
	switch {
	case o.KeepAlive < minKeepAlive || o.KeepAlive > maxKeepAlive:
		return &InvalidArgumentError{
			message: "keep-alive must be between 10s and 120s",
		}
	case o.KeepAlive%time.Second != 0:
		return &InvalidArgumentError{
			message: "keep-alive must be a whole number of seconds",
		}
	case o.KeepAliveMargin < 0 || o.KeepAliveMargin >= o.KeepAlive:
		return &InvalidArgumentError{
			message: "keep-alive margin must be less than the keep-alive",
		}
	case o.TelemetryQoS > 2 || o.CommandQoS > 2:
		return &InvalidArgumentError{message: "QoS must be 0, 1 or 2"}
	case o.DataSource != nil && o.TelemetryTopic == "":
		return &InvalidArgumentError{message: "telemetry topic is empty"}
	case o.CommandTopic == "":
		return &InvalidArgumentError{message: "command topic is empty"}
	case o.ConnectTimeout < 0, o.ReconnectDelay < 0, o.PublishInterval < 0,
		o.StabilizationWindow < 0, o.MaxPollInterval < 0:
		return &InvalidArgumentError{message: "durations must not be negative"}
	}
	return nil
}
