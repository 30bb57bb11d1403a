// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/disco-iot/mqtt"
	"github.com/disco-iot/mqtt/retry"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the sensor node configuration. It is loaded from YAML and can be
// overridden by SENSORNODE_* environment variables.
type Config struct {
	// Connection is a session client connection string. When empty, the
	// session client is configured from MQTT_* environment variables.
	Connection string `yaml:"connection"`
	// ClientID overrides any client identifier in the connection settings.
	ClientID string `yaml:"client_id"`

	Sensor  SensorConfig  `yaml:"sensor"`
	Retry   RetryConfig   `yaml:"retry"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// RetryConfig selects the connection retry policy. An empty backoff keeps
// whatever the connection settings configure.
type RetryConfig struct {
	// Backoff is "fixed" or "exponential".
	Backoff     string        `yaml:"backoff"`
	Attempts    uint64        `yaml:"attempts"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// SensorConfig controls the simulated sensor.
type SensorConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	Unit           string        `yaml:"unit"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig controls console logging.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

var errConfig = errors.New("invalid configuration")

// LoadConfig reads the YAML file at path, if any, over the defaults and then
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Sensor: SensorConfig{
			SampleInterval: time.Second,
			Unit:           "Count",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SENSORNODE_CONNECTION_STRING"); v != "" {
		cfg.Connection = v
	}
	if v := os.Getenv("SENSORNODE_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("SENSORNODE_SAMPLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SENSORNODE_SAMPLE_INTERVAL: %w", err)
		}
		cfg.Sensor.SampleInterval = d
	}
	if v := os.Getenv("SENSORNODE_RETRY_BACKOFF"); v != "" {
		cfg.Retry.Backoff = v
	}
	if v := os.Getenv("SENSORNODE_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("SENSORNODE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		cfg.Logging.NoColor = true
	}
	return nil
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.Sensor.SampleInterval <= 0 {
		return fmt.Errorf("%w: sensor.sample_interval must be positive",
			errConfig)
	}
	if c.Sensor.Unit == "" {
		return fmt.Errorf("%w: sensor.unit is required", errConfig)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("%w: metrics.address is required", errConfig)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.Retry.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy builds the configured retry policy, or nil when none is configured.
func (r RetryConfig) Policy() (retry.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(r.Backoff)) {
	case "":
		return nil, nil
	case "fixed":
		return &retry.FixedInterval{
			MaxAttempts: r.Attempts,
			Interval:    r.Interval,
		}, nil
	case "exponential":
		if r.MaxInterval != 0 && r.MaxInterval < r.Interval {
			return nil, fmt.Errorf(
				"%w: retry.max_interval is less than retry.interval",
				errConfig,
			)
		}
		return &retry.ExponentialBackoff{
			MaxAttempts: r.Attempts,
			MinInterval: r.Interval,
			MaxInterval: r.MaxInterval,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown retry.backoff %q",
			errConfig, r.Backoff)
	}
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(c.Logging.Level)))
	if err != nil {
		return 0, fmt.Errorf("%w: logging.level: %w", errConfig, err)
	}
	return level, nil
}

// SessionConfig resolves the connection provider and session options. The
// client identifier falls back to a device-style "disco_" identifier.
func (c *Config) SessionConfig() (
	mqtt.ConnectionProvider,
	*mqtt.SessionClientOptions,
	error,
) {
	var (
		provider mqtt.ConnectionProvider
		opts     *mqtt.SessionClientOptions
		err      error
	)
	if c.Connection != "" {
		provider, opts, err = mqtt.SessionClientConfigFromConnectionString(
			c.Connection,
		)
	} else {
		provider, opts, err = mqtt.SessionClientConfigFromEnv()
	}
	if err != nil {
		return nil, nil, err
	}
	if provider == nil {
		return nil, nil, fmt.Errorf("%w: no broker connection configured",
			errConfig)
	}

	policy, err := c.Retry.Policy()
	if err != nil {
		return nil, nil, err
	}
	if policy != nil {
		opts.ConnectionRetry = policy
	}

	switch {
	case c.ClientID != "":
		opts.ClientID = c.ClientID
	case opts.ClientID == "":
		opts.ClientID = deviceClientID()
	}
	return provider, opts, nil
}

func deviceClientID() string {
	return fmt.Sprintf("disco_%08x", uuid.New().ID())
}
