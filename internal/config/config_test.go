package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PIXELPROXY_ADDR", "FETCH_TIMEOUT", "FETCH_MAX_BYTES", "RESAMPLE_FILTER",
		"RECORD_SINK", "REDIS_ADDR", "MINIO_ENDPOINT", "UPSTREAM_GATEWAY_ERRORS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Proxy.Addr != ":1337" {
		t.Fatalf("expected :1337, got %s", cfg.Proxy.Addr)
	}
	if cfg.Fetch.Timeout != 15*time.Second {
		t.Fatalf("expected 15s fetch timeout, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxBytes != 32<<20 {
		t.Fatalf("expected 32MiB cap, got %d", cfg.Fetch.MaxBytes)
	}
	if cfg.Codec.Filter != "nearest" {
		t.Fatalf("expected nearest filter, got %s", cfg.Codec.Filter)
	}
	if cfg.Records.Sink != RecordSinkNone {
		t.Fatalf("expected no record sink, got %s", cfg.Records.Sink)
	}
	if cfg.Redis.Enabled() || cfg.Storage.Enabled() {
		t.Fatal("expected redis and object storage to be disabled by default")
	}
	if cfg.Fetch.GatewayErrors {
		t.Fatal("expected 404 for upstream failures by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIXELPROXY_ADDR", "127.0.0.1:8080")
	t.Setenv("PIXELPROXY_METRICS_ADDR", "")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("FETCH_MAX_BYTES", "1024")
	t.Setenv("UPSTREAM_GATEWAY_ERRORS", "true")
	t.Setenv("RECORD_SINK", "Postgres")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")

	cfg := Load()
	if cfg.Proxy.Addr != "127.0.0.1:8080" {
		t.Fatalf("expected override addr, got %s", cfg.Proxy.Addr)
	}
	if cfg.Proxy.MetricsAddr != "" {
		t.Fatalf("expected metrics listener to be disabled, got %q", cfg.Proxy.MetricsAddr)
	}
	if cfg.Fetch.Timeout != 3*time.Second || cfg.Fetch.MaxBytes != 1024 {
		t.Fatalf("unexpected fetch config %+v", cfg.Fetch)
	}
	if !cfg.Fetch.GatewayErrors {
		t.Fatal("expected gateway errors to be enabled")
	}
	if cfg.Records.Sink != RecordSinkPostgres {
		t.Fatalf("expected postgres sink, got %s", cfg.Records.Sink)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.ClientOptions().DB != 2 || cfg.Redis.AsynqClientOpt().Addr != "redis:6379" {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "soon")
	t.Setenv("JPEG_QUALITY", "high")
	t.Setenv("RATE_LIMIT_ENABLED", "maybe")

	cfg := Load()
	if cfg.Fetch.Timeout != 15*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Codec.JPEGQuality != 80 {
		t.Fatalf("expected fallback quality, got %d", cfg.Codec.JPEGQuality)
	}
	if cfg.RateLimit.Enabled {
		t.Fatal("expected rate limiting to stay disabled")
	}
}

func TestMaxSourcePixels(t *testing.T) {
	t.Setenv("MAX_SOURCE_PIXELS", "")
	if got := Load().Codec.MaxPixels; got != 50_000_000 {
		t.Fatalf("expected 50MP default, got %d", got)
	}

	t.Setenv("MAX_SOURCE_PIXELS", "1000000")
	if got := Load().Codec.MaxPixels; got != 1_000_000 {
		t.Fatalf("expected override, got %d", got)
	}
}
