// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/disco-iot/mqtt/internal"
	"github.com/disco-iot/mqtt/internal/log"
	"github.com/disco-iot/mqtt/internal/wallclock"
	"github.com/disco-iot/mqtt/retry"
)

type (
	// SessionClient maintains a single MQTT v5 session with a broker: it
	// connects and retries, keeps the connection alive, completes QoS 1 and
	// QoS 2 acknowledgment exchanges, dispatches commands and publishes
	// telemetry. All protocol work happens on the goroutine calling Run.
	SessionClient struct {
		// Used to ensure Run is called only once.
		started atomic.Bool

		// Closed by Stop. Run observes it once per loop iteration.
		shutdown *internal.Background

		// Latest network connectivity report, written by the network layer.
		network *internal.Mailbox[networkEvent]

		status         atomic.Uint32
		statusReported bool

		statusHandlers     *internal.Handlers[StatusEventHandler]
		fatalErrorHandlers *internal.Handlers[func(error)]

		connectionProvider ConnectionProvider
		options            SessionClientOptions
		subscriptions      []Subscription

		publisher publisher
		commands  commandDispatcher
		metrics   *Metrics

		// The current session. Only valid on the Run goroutine while
		// connected.
		sess *session

		log logger
	}

	networkEvent byte
)

const (
	networkLost networkEvent = iota
	networkRestored
)

var errNetworkLost = errors.New("network connectivity lost")

// NewSessionClient constructs a new session client with user options.
func NewSessionClient(
	connectionProvider ConnectionProvider,
	opts ...SessionClientOption,
) (*SessionClient, error) {
	client := &SessionClient{
		connectionProvider: connectionProvider,

		shutdown: internal.NewBackground(&ClientStateError{State: ShutDown}),
		network:  internal.NewMailbox[networkEvent](),

		statusHandlers:     internal.NewHandlers[StatusEventHandler](),
		fatalErrorHandlers: internal.NewHandlers[func(error)](),
	}

	client.options.Apply(opts)
	o := &client.options

	if o.ClientID == "" {
		o.ClientID = RandomClientID()
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.KeepAliveMargin == 0 {
		o.KeepAliveMargin = o.KeepAlive / 10
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.MaxPollInterval == 0 {
		o.MaxPollInterval = defaultMaxPollInterval
	}
	if o.PublishInterval == 0 {
		o.PublishInterval = defaultPublishInterval
	}
	if o.StabilizationWindow == 0 {
		o.StabilizationWindow = defaultStabilizationWindow
	}
	if o.TelemetryTopic == "" {
		o.TelemetryTopic = defaultTelemetryTopic
	}
	if o.CommandTopic == "" {
		o.CommandTopic = defaultCommandTopic
	}
	if o.ConnectionRetry == nil {
		o.ConnectionRetry = &retry.FixedInterval{
			MaxAttempts: defaultConnectAttempts,
			Interval:    defaultRetryInterval,
			Logger:      o.Logger,
		}
	}

	if connectionProvider == nil {
		return nil, &InvalidArgumentError{
			message: "connection provider must be set",
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	client.log = logger{internal.Logger{Logger: log.Wrap(o.Logger)}}
	client.metrics = o.Metrics
	client.subscriptions = []Subscription{{
		TopicFilter: o.CommandTopic,
		QoS:         o.CommandQoS,
		HandlerKey:  commandHandlerKey,
	}}
	client.publisher = publisher{
		topic:         o.TelemetryTopic,
		qos:           o.TelemetryQoS,
		interval:      o.PublishInterval,
		stabilization: o.StabilizationWindow,
		source:        o.DataSource,
	}
	client.commands = commandDispatcher{
		table:   o.Commands,
		log:     client.log,
		metrics: o.Metrics,
	}

	return client, nil
}

// ID returns the MQTT client ID for this session client.
func (c *SessionClient) ID() string {
	return c.options.ClientID
}

// Stop asks Run to disconnect gracefully and return. It does not wait for
// Run to finish.
func (c *SessionClient) Stop() error {
	if !c.started.Load() {
		return &ClientStateError{State: NotStarted}
	}
	c.shutdown.Close()
	return nil
}

// NotifyNetworkLost reports that the underlying network went away. A live
// session is torn down and no connection is attempted until
// NotifyNetworkRestored is called.
func (c *SessionClient) NotifyNetworkLost() {
	c.network.Put(networkLost)
}

// NotifyNetworkRestored reports that the underlying network is available
// again. A client waiting for the network, including after its connection
// retries were exhausted, starts a fresh retry budget.
func (c *SessionClient) NotifyNetworkRestored() {
	c.network.Put(networkRestored)
}

// Run connects to the MQTT server and maintains the session until Stop is
// called, ctx is cancelled or a fatal error occurs. It returns nil after Stop
// and the fatal error otherwise. Exhausting the connection retries is
// reported through the status handlers without returning.
func (c *SessionClient) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return &ClientStateError{State: Started}
	}
	defer c.shutdown.Close()

	ctx, cancel := c.shutdown.With(ctx)
	defer cancel()

	for {
		// Reports from before this retry budget are stale.
		c.network.Take()

		if err := c.connect(ctx); err != nil {
			switch {
			case c.stopping(ctx):
				return c.exitErr(ctx)
			case isFatal(err):
				c.setStatus(ctx, StatusFatal, err)
				return err
			}

			c.setStatus(ctx, StatusFatal, exhausted(err))
			if err := c.awaitNetwork(ctx); err != nil {
				return c.exitErr(ctx)
			}
			continue
		}

		err := c.runSession(ctx)
		switch {
		case c.stopping(ctx):
			return c.exitErr(ctx)
		case isFatal(err):
			c.setStatus(ctx, StatusFatal, err)
			return err
		}

		c.setStatus(ctx, StatusConnecting, nil)
		lost := errors.Is(err, errNetworkLost)
		if !lost {
			if lost, err = c.reconnectDelay(ctx); err != nil {
				return c.exitErr(ctx)
			}
		}
		if lost {
			if err := c.awaitNetwork(ctx); err != nil {
				return c.exitErr(ctx)
			}
		}
	}
}

func exhausted(err error) *RetryExhaustedError {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return &RetryExhaustedError{Attempts: ex.Attempts, wrapped: ex.Err}
	}
	return &RetryExhaustedError{wrapped: err}
}

// stopping reports whether Stop was called or ctx is done.
func (c *SessionClient) stopping(ctx context.Context) bool {
	return c.shutdown.Closed() || ctx.Err() != nil
}

// exitErr is the result of Run once it is stopping.
func (c *SessionClient) exitErr(ctx context.Context) error {
	if c.shutdown.Closed() {
		return nil
	}
	return ctx.Err()
}

// reconnectDelay waits before a new retry budget. It reports whether the
// network was lost while waiting.
func (c *SessionClient) reconnectDelay(
	ctx context.Context,
) (lost bool, err error) {
	c.log.waiting(ctx, "reconnecting after delay", c.options.ReconnectDelay)
	expired := wallclock.Instance.After(c.options.ReconnectDelay)
	for {
		select {
		case <-expired:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-c.network.Ready():
			if ev, ok := c.network.Take(); ok && ev == networkLost {
				return true, nil
			}
		}
	}
}

// awaitNetwork parks the supervisor until the network layer reports restored
// connectivity.
func (c *SessionClient) awaitNetwork(ctx context.Context) error {
	c.log.waiting(ctx, "waiting for network connectivity", 0)
	for {
		if ev, ok := c.network.Take(); ok && ev == networkRestored {
			return nil
		}
		select {
		case <-c.network.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (*SessionClient) now() time.Time {
	return wallclock.Instance.Now()
}
