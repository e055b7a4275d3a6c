package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxLocalSubjects = 4096

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per subject inside this process.
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

func NewLocalLimiter(capacity int, window time.Duration) (*LocalLimiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	return &LocalLimiter{
		entries: make(map[string]*localEntry),
		limit:   rate.Limit(float64(capacity) / window.Seconds()),
		burst:   capacity,
		idleTTL: 2 * window,
		now:     time.Now,
	}, nil
}

func (l *LocalLimiter) Allow(_ context.Context, subject string) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[subject]
	if !ok {
		if len(l.entries) >= maxLocalSubjects {
			l.evictIdle(now)
		}
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[subject] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, Remaining: 0, RetryAfter: delay}, nil
	}

	remaining := int64(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (l *LocalLimiter) evictIdle(now time.Time) {
	for subject, entry := range l.entries {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.entries, subject)
		}
	}
}
