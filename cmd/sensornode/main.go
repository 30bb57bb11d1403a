// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Sensornode runs a simulated sensor device that publishes telemetry to an
// MQTT broker and drives a virtual LED board from broker commands.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disco-iot/mqtt"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := must(LoadConfig(*configPath))
	level := must(cfg.LogLevel())
	if cfg.Logging.NoColor {
		color.NoColor = true
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    color.NoColor,
	}))

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("sensor node stopped", tint.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, log *slog.Logger) error {
	provider, opts, err := cfg.SessionConfig()
	if err != nil {
		return err
	}

	var metrics *mqtt.Metrics
	if cfg.Metrics.Enabled {
		metrics = mqtt.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(cfg.Metrics.Address, log)
	}

	box := mqtt.NewMailbox()
	board := NewBoard(os.Stdout, log)

	client, err := mqtt.NewSessionClient(
		provider,
		opts,
		mqtt.WithDataSource(box),
		mqtt.WithCommands(board.Commands()),
		mqtt.WithMetrics(metrics),
		mqtt.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer client.RegisterStatusEventHandler(board.OnStatus)()
	defer client.RegisterFatalErrorHandler(func(err error) {
		log.Error("session needs attention", tint.Err(err))
	})()

	sensorCtx, stopSensor := context.WithCancel(ctx)
	defer stopSensor()
	go NewSensor(cfg.Sensor.Unit).Produce(
		sensorCtx,
		box,
		cfg.Sensor.SampleInterval,
	)

	stopSignals := handleSignals(client, log)
	defer stopSignals()

	log.Info("sensor node starting", slog.String("client_id", client.ID()))
	return client.Run(ctx)
}

// handleSignals stops the client on SIGINT or SIGTERM and forwards network
// reachability signals to it.
func handleSignals(client *mqtt.SessionClient, log *slog.Logger) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	notifyNetworkSignals(sig)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case s := <-sig:
				log.Debug("signal received", slog.String("signal", s.String()))
				if !forwardNetworkSignal(client, s) {
					if err := client.Stop(); err != nil {
						log.Warn("stop failed", tint.Err(err))
					}
				}
			}
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics server listening", slog.String("address", addr))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", tint.Err(err))
	}
}

func check(e error) {
	if e != nil {
		panic(e)
	}
}

func must[T any](t T, e error) T {
	check(e)
	return t
}
