package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeClock is a settable time source for the limiter.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(opts ...Option) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(zerolog.Nop(), opts...), clock
}

func TestCheckCountsDownRemaining(t *testing.T) {
	l, _ := newTestLimiter()

	allowed, remaining := l.Check("k", 3, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 2, remaining)

	allowed, remaining = l.Check("k", 3, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining = l.Check("k", 3, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, remaining = l.Check("k", 3, time.Minute)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestWindowExpiryReadmits(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Check("k", 3, time.Minute)
		assert.True(t, allowed)
	}
	allowed, _ := l.Check("k", 3, time.Minute)
	assert.False(t, allowed)

	clock.advance(61 * time.Second)
	allowed, remaining := l.Check("k", 3, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 2, remaining)
}

// Denied attempts are never recorded: hammering a full window must not push
// readmission further into the future.
func TestDeniedAttemptsNotRecorded(t *testing.T) {
	l, clock := newTestLimiter()

	start := clock.now()
	l.Check("k", 1, time.Minute)
	for i := 0; i < 100; i++ {
		clock.advance(time.Second)
		allowed, _ := l.Check("k", 1, time.Minute)
		if clock.now().Sub(start) >= time.Minute {
			assert.True(t, allowed)
			break
		}
		assert.False(t, allowed)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	l.Check("a", 1, time.Minute)
	allowed, _ := l.Check("a", 1, time.Minute)
	assert.False(t, allowed)

	allowed, _ = l.Check("b", 1, time.Minute)
	assert.True(t, allowed)
}

func TestConcurrentAdmissionNeverExceedsMax(t *testing.T) {
	l := New(zerolog.Nop())

	const max = 10
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Check("shared", max, time.Minute); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(max), admitted.Load())
}

func TestPruneDropsIdleKeys(t *testing.T) {
	l, clock := newTestLimiter()

	l.Check("idle", 5, time.Minute)
	l.Check("busy", 5, time.Minute)
	assert.Equal(t, 2, l.KeyCount())

	clock.advance(10 * time.Minute)
	l.Check("busy", 5, time.Minute)
	l.Prune(5 * time.Minute)
	assert.Equal(t, 1, l.KeyCount())
}

func TestMemoryStatsRecordsDecisions(t *testing.T) {
	stats := NewMemoryStats()
	l, _ := newTestLimiter(WithStats(stats))

	l.Check("k", 1, time.Minute)
	l.Check("k", 1, time.Minute)

	allowed, denied := stats.Totals()
	assert.Equal(t, uint64(1), allowed)
	assert.Equal(t, uint64(1), denied)

	ks := stats.Key("k")
	assert.Equal(t, uint64(1), ks.Allowed)
	assert.Equal(t, uint64(1), ks.Denied)
}
