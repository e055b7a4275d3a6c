package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/pixelproxy/internal/config"
	"github.com/dunamismax/pixelproxy/internal/store"
	"github.com/dunamismax/pixelproxy/internal/telemetry"
	"github.com/dunamismax/pixelproxy/internal/worker"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[recorder] ", log.LstdFlags|log.Lmsgprefix)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName + "-recorder",
		ServiceVersion: version,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		OTLPInsecure:   cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	recordStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("record store setup failed store=%s: %v", cfg.Worker.Store, err)
	}
	defer recordStore.Close()

	srv, err := worker.NewServer(logger, cfg.Redis, cfg.Records, cfg.Worker, recordStore)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	var metricsServer *http.Server
	if cfg.Worker.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.Worker.MetricsAddr,
			Handler:           srv.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server failed: %v", err)
			}
		}()
	}

	logger.Printf(
		"starting recorder concurrency=%d queue=%s store=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Records.Queue,
		cfg.Worker.Store,
		cfg.Redis.Addr,
	)

	// Run blocks until SIGINT or SIGTERM.
	if err := srv.Run(); err != nil {
		logger.Printf("recorder failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.RecordStore, error) {
	switch cfg.Worker.Store {
	case config.RecordSinkPostgres:
		return store.NewPostgresRecordStore(ctx, cfg.Records.PostgresDSN)
	case config.RecordSinkSQLite:
		return store.NewSQLiteRecordStore(ctx, cfg.Records.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported recorder store %q", cfg.Worker.Store)
	}
}
