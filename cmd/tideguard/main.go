package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/tideguard-telemetry/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/tideguard-telemetry/internal/adapter/kafka"
	"github.com/couchcryptid/tideguard-telemetry/internal/adapter/polling"
	"github.com/couchcryptid/tideguard-telemetry/internal/adapter/websocket"
	"github.com/couchcryptid/tideguard-telemetry/internal/config"
	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/monitor"
	"github.com/couchcryptid/tideguard-telemetry/internal/observability"
	"github.com/couchcryptid/tideguard-telemetry/internal/store"
	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	transport, err := buildTransport(cfg, logger)
	if err != nil {
		logger.Error("failed to build transport", "error", err)
		os.Exit(1)
	}
	logger.Info("stream transport configured",
		"transports", cfg.StreamTransports,
		"backend_url", cfg.BackendURL,
		"latch_scope", cfg.LatchScope,
	)

	manager := stream.New(transport, streamOptions(cfg), logger, metrics)
	defer manager.Close()

	mon := monitor.New(manager, store.New(nil), domain.NewAlertLatch(cfg.LatchScope, nil), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, mon, mon, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start monitor; it disconnects the stream when ctx is cancelled.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := mon.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Error("monitor did not stop in time")
	}

	logger.Info("shutdown complete")
}

func streamOptions(cfg *config.Config) stream.Options {
	return stream.Options{
		Transports:           cfg.StreamTransports,
		Timeout:              cfg.StreamTimeout,
		Reconnection:         cfg.StreamReconnection,
		ReconnectionAttempts: cfg.StreamReconnectionAttempts,
		ReconnectionDelay:    cfg.StreamReconnectionDelay,
		ReconnectionDelayMax: cfg.StreamReconnectionDelayMax,
	}
}

// buildTransport creates one transport per STREAM_TRANSPORTS entry, tried in
// the listed order.
func buildTransport(cfg *config.Config, logger *slog.Logger) (stream.Transport, error) {
	transports := make([]stream.Transport, 0, len(cfg.StreamTransports))
	for _, kind := range cfg.StreamTransports {
		switch kind {
		case config.TransportWebsocket:
			t, err := websocket.NewTransport(cfg.BackendURL, cfg.StreamPath, logger)
			if err != nil {
				return nil, err
			}
			transports = append(transports, t)
		case config.TransportPolling:
			transports = append(transports, polling.NewTransport(cfg.BackendURL, cfg.PollInterval, logger))
		case config.TransportKafka:
			transports = append(transports, kafkaadapter.NewTransport(cfg, logger))
		default:
			return nil, fmt.Errorf("unknown transport %q", kind)
		}
	}
	if len(transports) == 1 {
		return transports[0], nil
	}
	return stream.Fallback(transports...), nil
}
