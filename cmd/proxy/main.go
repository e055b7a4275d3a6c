package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelproxy/internal/api"
	"github.com/dunamismax/pixelproxy/internal/config"
	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/dunamismax/pixelproxy/internal/queue"
	"github.com/dunamismax/pixelproxy/internal/ratelimit"
	"github.com/dunamismax/pixelproxy/internal/storage"
	"github.com/dunamismax/pixelproxy/internal/store"
	"github.com/dunamismax/pixelproxy/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg := config.Load()
	addr := flag.String("addr", cfg.Proxy.Addr, "address to listen on")
	flag.Parse()

	logger := log.New(os.Stdout, "[proxy] ", log.LstdFlags|log.Lmsgprefix)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		OTLPInsecure:   cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("codec startup failed: %v", err)
	}
	defer pipeline.Shutdown()

	fetcher, err := newFetcher(cfg)
	if err != nil {
		logger.Fatalf("fetcher setup failed: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() && cfg.RateLimit.Enabled {
		redisClient = redis.NewClient(cfg.Redis.ClientOptions())
		defer redisClient.Close()
	}

	limiter, err := newRateLimiter(cfg.RateLimit, redisClient)
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}

	recorder, closeRecorder, err := newRecorder(ctx, cfg)
	if err != nil {
		logger.Fatalf("record sink setup failed sink=%s: %v", cfg.Records.Sink, err)
	}
	defer func() {
		if err := closeRecorder.Close(); err != nil {
			logger.Printf("record sink close error: %v", err)
		}
	}()

	app := api.NewServer(logger, fetcher, api.Options{
		Pipeline: pipeline.Options{
			Codec: pipeline.CodecOptions{
				Filter:         pipeline.ParseFilter(cfg.Codec.Filter),
				JPEGQuality:    cfg.Codec.JPEGQuality,
				PNGCompression: cfg.Codec.PNGCompression,
				MaxPixels:      cfg.Codec.MaxPixels,
			},
			Policy: pipeline.StatusPolicy{GatewayErrors: cfg.Fetch.GatewayErrors},
		},
		Recorder:    recorder,
		RateLimiter: limiter,
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Fetch.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Proxy.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.Proxy.MetricsAddr,
			Handler:           app.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("metrics listening on %s", cfg.Proxy.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server failed: %v", err)
			}
		}()
	}

	go func() {
		logger.Printf(
			"listening on %s backend=%s filter=%s record_sink=%s rate_limit=%t",
			*addr,
			pipeline.Backend(),
			pipeline.ParseFilter(cfg.Codec.Filter),
			cfg.Records.Sink,
			limiter != nil,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("metrics shutdown failed: %v", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func newFetcher(cfg config.Config) (pipeline.SchemeFetcher, error) {
	httpFetcher := pipeline.NewHTTPFetcher(pipeline.HTTPFetcherConfig{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: "pixelproxy/" + version,
	})
	fetcher := pipeline.SchemeFetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
	}

	if cfg.Storage.Enabled() {
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		fetcher[pipeline.SchemeObjectStore] = pipeline.ObjectStoreFetcher{
			Storage:  client,
			MaxBytes: cfg.Fetch.MaxBytes,
		}
	}
	return fetcher, nil
}

// newRateLimiter returns nil when limiting is off. Redis is preferred so that
// replicas share buckets.
func newRateLimiter(cfg config.RateLimitConfig, redisClient *redis.Client) (api.RateLimiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if redisClient != nil {
		return ratelimit.NewRedisTokenBucket(redisClient, cfg.Capacity, cfg.Window, "")
	}
	return ratelimit.NewLocalLimiter(cfg.Capacity, cfg.Window)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newRecorder(ctx context.Context, cfg config.Config) (api.Recorder, io.Closer, error) {
	switch cfg.Records.Sink {
	case config.RecordSinkNone, "":
		return nil, nopCloser{}, nil
	case config.RecordSinkMemory:
		rs := store.NewMemoryRecordStore(0)
		return rs, rs, nil
	case config.RecordSinkPostgres:
		rs, err := store.NewPostgresRecordStore(ctx, cfg.Records.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil
	case config.RecordSinkSQLite:
		rs, err := store.NewSQLiteRecordStore(ctx, cfg.Records.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil
	case config.RecordSinkQueue:
		if !cfg.Redis.Enabled() {
			return nil, nil, fmt.Errorf("queue sink requires REDIS_ADDR")
		}
		client := queue.NewClient(cfg.Redis.AsynqClientOpt(), cfg.Records.Queue)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown record sink %q", cfg.Records.Sink)
	}
}
