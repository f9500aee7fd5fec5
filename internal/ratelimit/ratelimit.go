// Package ratelimit implements the single global token-bucket rate limiter
// gating the server's accept loop (spec §4.5/§5), narrowed from the
// teacher's three-tier (global/prefix/IP) limiter down to just the global
// bucket algorithm.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token-bucket rate limiter: tokens replenish at Rate per
// second up to Burst capacity, and each successful UntilReady (or internal
// allow) consumes one token.
type Limiter struct {
	rate  float64
	burst float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// New constructs a Limiter. A non-positive rate or burst disables limiting
// entirely (allow/UntilReady always succeed immediately), mirroring
// teacher's TokenBucketRateLimiter.Allow "disabled by rate<=0" convention.
func New(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

func (l *Limiter) disabled() bool {
	return l.rate <= 0 || l.burst <= 0
}

// allow reports whether a token is immediately available, consuming one if
// so. Non-blocking; the internal fast path for UntilReady. spec §4.5 only
// ever gates the accept loop with a blocking wait, so this has no exported
// counterpart — a non-blocking poll-and-drop primitive has no caller in
// this server's design.
func (l *Limiter) allow() bool {
	if l.disabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.replenishLocked(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// UntilReady blocks until a token is available or ctx is done, consuming
// the token on success. This is the "await the global rate limiter's
// readiness" suspension point the server loop takes between spawning one
// query's worker and reading the next datagram (spec §4.5).
func (l *Limiter) UntilReady(ctx context.Context) error {
	if l.disabled() {
		return nil
	}

	for {
		if l.allow() {
			return nil
		}

		l.mu.Lock()
		wait := l.waitForOneTokenLocked()
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// replenishLocked adds tokens for elapsed time, capped at burst. Caller
// must hold l.mu.
func (l *Limiter) replenishLocked(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	l.last = now
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}

// waitForOneTokenLocked returns how long until at least one token accrues.
// Caller must hold l.mu.
func (l *Limiter) waitForOneTokenLocked() time.Duration {
	deficit := 1 - l.tokens
	if deficit <= 0 {
		return 0
	}
	seconds := deficit / l.rate
	return time.Duration(seconds * float64(time.Second))
}
