// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disco-iot/mqtt/retry"
	"github.com/sosodev/duration"
)

type connectionProviderBuilder struct {
	hostname     string
	port         uint16
	useTLS       *bool
	websocketURL string
	caFile       string
	certFile     string
	keyFile      string
	keyPassFile  string
}

// SessionClientConfigFromEnv parses a session client configuration from
// environment variables prefixed with MQTT_, e.g. MQTT_HOST_NAME=localhost,
// MQTT_TCP_PORT=1883 or MQTT_KEEP_ALIVE=PT10S. Underscores after the prefix
// are ignored, so the keys match those of
// SessionClientConfigFromConnectionString. Missing connection settings yield
// a nil ConnectionProvider rather than an error, so options can be supplied
// from the environment independently.
func SessionClientConfigFromEnv() (
	ConnectionProvider,
	*SessionClientOptions,
	error,
) {
	settings := map[string]string{}
	for _, env := range os.Environ() {
		key, val, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		name, ok := strings.CutPrefix(key, "MQTT_")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.ReplaceAll(name, "_", ""))
		settings[name] = strings.TrimSpace(val)
	}
	return configFromSettings(settings)
}

// SessionClientConfigFromConnectionString parses a session client
// configuration from a semicolon-delimited connection string, e.g.
// "HostName=localhost;TcpPort=1883;UseTls=false;KeepAlive=PT10S". Keys are
// case-insensitive; durations use ISO 8601 notation.
func SessionClientConfigFromConnectionString(
	connStr string,
) (ConnectionProvider, *SessionClientOptions, error) {
	settings := map[string]string{}
	params := strings.Split(strings.TrimSuffix(connStr, ";"), ";")
	for _, param := range params {
		key, val, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		settings[key] = strings.TrimSpace(val)
	}
	return configFromSettings(settings)
}

// NewSessionClientFromEnv is a shorthand for constructing a session client
// using SessionClientConfigFromEnv.
func NewSessionClientFromEnv(
	opt ...SessionClientOption,
) (*SessionClient, error) {
	connectionProvider, opts, err := SessionClientConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return newConfiguredSessionClient(connectionProvider, opts, opt)
}

// NewSessionClientFromConnectionString is a shorthand for constructing a
// session client using SessionClientConfigFromConnectionString.
func NewSessionClientFromConnectionString(
	connStr string,
	opt ...SessionClientOption,
) (*SessionClient, error) {
	connectionProvider, opts, err := SessionClientConfigFromConnectionString(
		connStr,
	)
	if err != nil {
		return nil, err
	}
	return newConfiguredSessionClient(connectionProvider, opts, opt)
}

func newConfiguredSessionClient(
	connectionProvider ConnectionProvider,
	opts *SessionClientOptions,
	rest []SessionClientOption,
) (*SessionClient, error) {
	if connectionProvider == nil {
		return nil, &InvalidArgumentError{
			message: "connection must be configured",
		}
	}
	return NewSessionClient(
		connectionProvider,
		append([]SessionClientOption{opts}, rest...)...,
	)
}

func configFromSettings(
	settings map[string]string,
) (ConnectionProvider, *SessionClientOptions, error) {
	opts := &SessionClientOptions{}
	conn := connectionProviderBuilder{}
	var policy retrySettings

	for key, val := range settings {
		var err error
		switch key {
		case "hostname":
			conn.hostname = val
		case "tcpport":
			conn.port, err = parseUint[uint16](key, val, 16)
		case "usetls":
			var useTLS bool
			useTLS, err = parseBool(key, val)
			conn.useTLS = &useTLS
		case "websocketurl":
			conn.websocketURL = val
		case "cafile":
			conn.caFile = val
		case "certfile":
			conn.certFile = val
		case "keyfile":
			conn.keyFile = val
		case "keyfilepassword":
			conn.keyPassFile = val

		case "clientid":
			opts.ClientID = val
		case "cleanstart":
			opts.CleanStart, err = parseBool(key, val)
		case "username":
			opts.Username = val
		case "passwordfile":
			opts.Password, err = os.ReadFile(val)
			if err != nil {
				err = &InvalidArgumentError{
					message: "could not read MQTT password file",
					wrapped: err,
				}
			}

		case "keepalive":
			opts.KeepAlive, err = parseDuration(key, val)
		case "keepalivemargin":
			opts.KeepAliveMargin, err = parseDuration(key, val)
		case "connecttimeout":
			opts.ConnectTimeout, err = parseDuration(key, val)
		case "reconnectdelay":
			opts.ReconnectDelay, err = parseDuration(key, val)
		case "retrybackoff":
			policy.backoff = strings.ToLower(val)
		case "retryattempts":
			policy.attempts, err = parseUint[uint64](key, val, 64)
		case "retryinterval":
			policy.interval, err = parseDuration(key, val)
		case "retrymaxinterval":
			policy.maxInterval, err = parseDuration(key, val)

		case "telemetrytopic":
			opts.TelemetryTopic = val
		case "telemetryqos":
			opts.TelemetryQoS, err = parseUint[byte](key, val, 8)
		case "publishinterval":
			opts.PublishInterval, err = parseDuration(key, val)
		case "stabilizationwindow":
			opts.StabilizationWindow, err = parseDuration(key, val)
		case "commandtopic":
			opts.CommandTopic = val
		case "commandqos":
			opts.CommandQoS, err = parseUint[byte](key, val, 8)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	var err error
	opts.ConnectionRetry, err = policy.build()
	if err != nil {
		return nil, nil, err
	}

	connectionProvider, err := conn.build()
	if err != nil {
		return nil, nil, err
	}
	return connectionProvider, opts, nil
}

type retrySettings struct {
	backoff     string
	attempts    uint64
	interval    time.Duration
	maxInterval time.Duration
}

// build returns nil when no retry setting is present, leaving the session
// client default in place.
func (r retrySettings) build() (retry.Policy, error) {
	switch r.backoff {
	case "":
		if r == (retrySettings{}) {
			return nil, nil
		}
		fallthrough
	case "fixed":
		if r.maxInterval != 0 {
			return nil, &InvalidArgumentError{
				message: "RetryMaxInterval requires exponential backoff",
			}
		}
		return &retry.FixedInterval{
			MaxAttempts: r.attempts,
			Interval:    r.interval,
		}, nil
	case "exponential":
		if r.maxInterval != 0 && r.maxInterval < r.interval {
			return nil, &InvalidArgumentError{
				message: "RetryMaxInterval is less than RetryInterval",
			}
		}
		return &retry.ExponentialBackoff{
			MaxAttempts: r.attempts,
			MinInterval: r.interval,
			MaxInterval: r.maxInterval,
		}, nil
	default:
		return nil, &InvalidArgumentError{
			message: "unknown RetryBackoff " + r.backoff,
		}
	}
}

func parseUint[T byte | uint16 | uint64](
	key string,
	val string,
	bitSize int,
) (T, error) {
	n, err := strconv.ParseUint(val, 10, bitSize)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + key,
			wrapped: err,
		}
	}
	return T(n), nil
}

func parseBool(key, val string) (bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, &InvalidArgumentError{
			message: "could not parse " + key,
			wrapped: err,
		}
	}
	return b, nil
}

func parseDuration(key, val string) (time.Duration, error) {
	d, err := duration.Parse(val)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + key + " as an ISO 8601 duration",
			wrapped: err,
		}
	}
	return d.ToTimeDuration(), nil
}

func (b *connectionProviderBuilder) build() (ConnectionProvider, error) {
	if b.websocketURL != "" {
		if b.hostname != "" || b.port != 0 {
			return nil, &InvalidArgumentError{
				message: "WebSocket URL and hostname are mutually exclusive",
			}
		}
		var provider TLSConfigProvider
		if strings.HasPrefix(b.websocketURL, "wss://") {
			provider = TLSConfig(b.tlsOptions()...)
		}
		return WebSocketConnection(b.websocketURL, nil, provider), nil
	}

	if b.hostname == "" {
		if b.port != 0 || b.useTLS != nil || b.hasTLS() {
			return nil, &InvalidArgumentError{
				message: "connection configuration provided without hostname",
			}
		}
		return nil, nil
	}

	if b.useTLS == nil || !*b.useTLS {
		if b.hasTLS() {
			return nil, &InvalidArgumentError{
				message: "TLS configuration provided but not using TLS",
			}
		}
		if b.port == 0 {
			b.port = 1883
		}
		return TCPConnection(b.hostname, int(b.port)), nil
	}

	if (b.certFile != "") != (b.keyFile != "") {
		return nil, &InvalidArgumentError{
			message: "certificate file and key file must be provided together",
		}
	}
	if b.port == 0 {
		b.port = 8883
	}
	return TLSConnection(
		b.hostname,
		int(b.port),
		TLSConfig(b.tlsOptions()...),
	), nil
}

func (b *connectionProviderBuilder) tlsOptions() []TLSOption {
	var opts []TLSOption

	// Bypasses hostname check in TLS config when deliberately connecting to
	// localhost.
	if b.hostname == "localhost" {
		opts = append(opts, WithInsecureSkipVerify())
	}
	switch {
	case b.certFile != "" && b.keyPassFile != "":
		opts = append(opts, WithEncryptedX509(
			b.certFile,
			b.keyFile,
			b.keyPassFile,
		))
	case b.certFile != "":
		opts = append(opts, WithX509(b.certFile, b.keyFile))
	}
	if b.caFile != "" {
		opts = append(opts, WithCA(b.caFile))
	}
	return opts
}

func (b *connectionProviderBuilder) hasTLS() bool {
	return b.caFile != "" || b.certFile != "" || b.keyFile != "" ||
		b.keyPassFile != ""
}
