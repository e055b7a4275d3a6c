package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// clientBucketScript refills and takes one token from a client's bucket. It
// reads the clock from Redis so replicas with skewed clocks agree.
//
// KEYS[1] bucket hash; ARGV capacity, refill per ms, ttl ms.
// Returns {allowed, remaining, retry_after_ms}.
var clientBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now_ms = tonumber(clock[1]) * 1000 + math.floor(tonumber(clock[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now_ms

tokens = math.min(capacity, tokens + math.max(0, now_ms - ts) * refill_per_ms)

if tokens < 1 then
  redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now_ms)
  redis.call("PEXPIRE", KEYS[1], ttl_ms)
  return {0, 0, math.ceil((1 - tokens) / refill_per_ms)}
end

tokens = tokens - 1
redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now_ms)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return {1, math.floor(tokens), 0}
`)

// RedisTokenBucket shares one bucket per client across every proxy replica.
type RedisTokenBucket struct {
	client      redis.UniversalClient
	refillPerMS float64
	capacity    int
	ttl         time.Duration
	keyPrefix   string
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("window must be at least 1ms")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "pixelproxy:ratelimit"
	}

	return &RedisTokenBucket{
		client:      client,
		refillPerMS: float64(capacity) / float64(window.Milliseconds()),
		capacity:    capacity,
		ttl:         2 * window,
		keyPrefix:   keyPrefix,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	raw, err := clientBucketScript.Run(
		ctx,
		l.client,
		[]string{l.bucketKey(subject)},
		l.capacity,
		l.refillPerMS,
		l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run client bucket script: %w", err)
	}
	return parseDecision(raw)
}

// bucketKey wraps the client in a hash tag so a cluster keeps each bucket on one slot.
func (l *RedisTokenBucket) bucketKey(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":{" + subject + "}"
}

func parseDecision(raw any) (Decision, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected client bucket reply %v", raw)
	}

	var parsed [3]int64
	for i, v := range values {
		n, err := toInt64(v)
		if err != nil {
			return Decision{}, fmt.Errorf("client bucket reply field %d: %w", i, err)
		}
		parsed[i] = n
	}

	return Decision{
		Allowed:    parsed[0] == 1,
		Remaining:  parsed[1],
		RetryAfter: time.Duration(parsed[2]) * time.Millisecond,
	}, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
