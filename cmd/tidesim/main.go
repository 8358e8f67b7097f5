// Command tidesim runs a stand-in TideGuard backend that streams simulated
// coastal weather samples over a websocket and serves the REST endpoints the
// client uses.
//
// Usage:
//
//	SIM_HTTP_ADDR=:5000 SIM_INTERVAL=5s go run ./cmd/tidesim
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/tideguard-telemetry/internal/adapter/kafka"
	"github.com/couchcryptid/tideguard-telemetry/internal/config"
	"github.com/couchcryptid/tideguard-telemetry/internal/observability"
	"github.com/couchcryptid/tideguard-telemetry/internal/simulator"
)

func main() {
	cfg, err := config.LoadSimulator()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewSimulatorLogger(cfg)

	var sinks []simulator.Sink
	var writer *kafkaadapter.SampleWriter
	if len(cfg.KafkaBrokers) > 0 {
		writer = kafkaadapter.NewSampleWriter(cfg.KafkaBrokers, cfg.KafkaTelemetryTopic, logger)
		sinks = append(sinks, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTelemetryTopic)
	}

	var accessLog io.Writer
	if cfg.AccessLog {
		accessLog = os.Stdout
	}

	clock := clockwork.NewRealClock()
	sim := simulator.NewServer(
		simulator.NewGenerator(clock, cfg.Seed),
		simulator.Options{
			Interval:      cfg.Interval,
			SeriesSize:    cfg.SeriesSize,
			AlertCooldown: cfg.AlertCooldown,
			AccessLog:     accessLog,
		},
		clock,
		logger,
		sinks...,
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sim.Run(ctx); err != nil {
			logger.Error("simulator error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	<-done
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
