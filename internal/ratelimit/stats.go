package ratelimit

import (
	"context"
	"sync"
	"time"
)

// StatsEvent is one admission decision.
type StatsEvent struct {
	Key     string
	Allowed bool
	At      time.Time
}

// StatsSink records admission decisions for observability. Implementations
// must tolerate concurrent calls.
type StatsSink interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// MemoryStats is the in-process sink: totals plus per-key counters.
type MemoryStats struct {
	mu      sync.Mutex
	allowed uint64
	denied  uint64
	perKey  map[string]*KeyStats
}

// KeyStats holds counters for one key.
type KeyStats struct {
	Allowed uint64
	Denied  uint64
}

// NewMemoryStats creates an empty in-memory sink.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{perKey: make(map[string]*KeyStats)}
}

// Record implements StatsSink.
func (m *MemoryStats) Record(_ context.Context, ev StatsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks := m.perKey[ev.Key]
	if ks == nil {
		ks = &KeyStats{}
		m.perKey[ev.Key] = ks
	}
	if ev.Allowed {
		m.allowed++
		ks.Allowed++
	} else {
		m.denied++
		ks.Denied++
	}
	return nil
}

// Totals returns the cumulative allowed and denied counts.
func (m *MemoryStats) Totals() (allowed, denied uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowed, m.denied
}

// Key returns a copy of the counters for one key.
func (m *MemoryStats) Key(key string) KeyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ks := m.perKey[key]; ks != nil {
		return *ks
	}
	return KeyStats{}
}
