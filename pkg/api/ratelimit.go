/*
2019 © Postgres.ai
*/

package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL      = 15 * time.Minute
	limiterCleanupEvery = 2 * time.Minute
	minRetryAfter       = time.Second
)

// rateLimiter keeps a token bucket per client key.
type rateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}

	return &rateLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: limiterIdleTTL,
	}
}

// allow takes a token for the key. When there is none, it returns the time to wait.
func (l *rateLimiter) allow(key string) (time.Duration, bool) {
	now := time.Now()

	l.mu.Lock()

	ent, ok := l.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}

	ent.lastSeen = now

	l.mu.Unlock()

	reservation := ent.lim.ReserveN(now, 1)
	if !reservation.OK() {
		return minRetryAfter, false
	}

	delay := reservation.DelayFrom(now)
	if delay == 0 {
		return 0, true
	}

	reservation.CancelAt(now)

	if delay < minRetryAfter {
		delay = minRetryAfter
	}

	return delay, false
}

func (l *rateLimiter) cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// runJanitor removes idle keys until the context is done.
func (l *rateLimiter) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupEvery)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
}
