package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterExhaustsAndRefills(t *testing.T) {
	limiter, err := NewLocalLimiter(3, 3*time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), "10.0.0.1")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if decision.Remaining != int64(2-i) {
			t.Fatalf("expected remaining=%d, got %d", 2-i, decision.Remaining)
		}
	}

	decision, _ := limiter.Allow(context.Background(), "10.0.0.1")
	if decision.Allowed {
		t.Fatal("expected fourth request to be rejected")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Second {
		t.Fatalf("expected retry-after within one refill interval, got %s", decision.RetryAfter)
	}

	other, _ := limiter.Allow(context.Background(), "10.0.0.2")
	if !other.Allowed {
		t.Fatal("expected a different subject to have its own bucket")
	}

	now = now.Add(time.Second)
	decision, _ = limiter.Allow(context.Background(), "10.0.0.1")
	if !decision.Allowed {
		t.Fatal("expected a token to refill after one second")
	}
}

func TestLocalLimiterEvictsIdleSubjects(t *testing.T) {
	limiter, err := NewLocalLimiter(1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	for i := 0; i < maxLocalSubjects; i++ {
		_, _ = limiter.Allow(context.Background(), time.Duration(i).String())
	}
	now = now.Add(time.Minute)
	_, _ = limiter.Allow(context.Background(), "fresh")

	if len(limiter.entries) != 1 {
		t.Fatalf("expected idle subjects to be evicted, got %d entries", len(limiter.entries))
	}
}

func TestNewLimitersValidateInput(t *testing.T) {
	if _, err := NewLocalLimiter(0, time.Second); err == nil {
		t.Fatal("expected capacity error")
	}
	if _, err := NewLocalLimiter(1, 0); err == nil {
		t.Fatal("expected window error")
	}
	if _, err := NewRedisTokenBucket(nil, 1, time.Second, ""); err == nil {
		t.Fatal("expected redis client error")
	}
}

func TestToInt64(t *testing.T) {
	for _, in := range []any{int64(7), 7, "7"} {
		got, err := toInt64(in)
		if err != nil || got != 7 {
			t.Fatalf("toInt64(%v): expected 7, got %d err=%v", in, got, err)
		}
	}
	if _, err := toInt64([]byte("7")); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]any{int64(0), int64(0), int64(1500)})
	if err != nil {
		t.Fatalf("parse decision: %v", err)
	}
	if d.Allowed || d.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("unexpected decision %+v", d)
	}

	d, _ = parseDecision([]any{int64(1), int64(4), int64(0)})
	if !d.Allowed || d.Remaining != 4 {
		t.Fatalf("unexpected decision %+v", d)
	}

	for _, raw := range []any{nil, []any{int64(1)}, []any{int64(1), "x", int64(0)}} {
		if _, err := parseDecision(raw); err == nil {
			t.Fatalf("expected error for reply %v", raw)
		}
	}
}

func TestBucketKeyUsesHashTag(t *testing.T) {
	bucket := &RedisTokenBucket{keyPrefix: "pixelproxy:ratelimit"}
	if got := bucket.bucketKey(" 203.0.113.9 "); got != "pixelproxy:ratelimit:{203.0.113.9}" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := bucket.bucketKey(""); got != "pixelproxy:ratelimit:{anonymous}" {
		t.Fatalf("unexpected key %s", got)
	}
}
