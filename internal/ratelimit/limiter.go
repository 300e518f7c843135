// Package ratelimit implements per-key sliding-window admission control.
//
// The limiter keeps, per key, the timestamps of admitted requests inside the
// trailing window and prunes them on every check. Denied attempts are never
// recorded, so a flooded key cannot grow memory.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limiter is a sliding-window log rate limiter. Decisions for all keys are
// serialized through one mutex; windows are small (tens to low hundreds of
// entries) so the critical section stays cheap.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	now   func() time.Time
	stats StatsSink
	log   zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithStats attaches a sink that records every decision.
func WithStats(sink StatsSink) Option {
	return func(l *Limiter) { l.stats = sink }
}

// New creates a Limiter.
func New(log zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
		log:     log.With().Str("component", "ratelimit").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check decides whether one more request for key is admitted under the
// limit of maxRequests per trailing window. It returns the decision and the
// number of requests still available after this one.
func (l *Limiter) Check(key string, maxRequests int, window time.Duration) (bool, int) {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	kept := l.windows[key][:0]
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < maxRequests
	remaining := 0
	if allowed {
		remaining = maxRequests - len(kept) - 1
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		delete(l.windows, key)
	} else {
		l.windows[key] = kept
	}
	l.mu.Unlock()

	if l.stats != nil {
		if err := l.stats.Record(context.Background(), StatsEvent{Key: key, Allowed: allowed, At: now}); err != nil {
			l.log.Debug().Err(err).Str("key", key).Msg("stats record failed")
		}
	}
	return allowed, remaining
}

// Prune drops keys whose newest admitted request is older than idleTTL.
func (l *Limiter) Prune(idleTTL time.Duration) {
	cutoff := l.now().Add(-idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, window := range l.windows {
		if len(window) == 0 || window[len(window)-1].Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// StartJanitor prunes idle keys on a fixed cadence until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, every, idleTTL time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Prune(idleTTL)
			}
		}
	}()
}

// KeyCount returns the number of keys with live windows.
func (l *Limiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
