// Package reaper runs the background sweep that expires liveness records
// and announces the expiries to observers.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/protocol"
)

// Broadcaster is the slice of the hub the reaper needs.
type Broadcaster interface {
	Broadcast(channel string, message any)
}

// Records is the slice of the registry the reaper needs.
type Records interface {
	MarkStale(kind domain.EntityKind, ttl time.Duration) []string
}

// kindChannel maps an entity kind to the channel its offline events go to.
var kindChannel = map[domain.EntityKind]string{
	domain.KindNode:  "nodes",
	domain.KindAgent: "agents",
}

// Reaper periodically marks stale nodes and agents offline and broadcasts
// one offline event per flipped record. It only ever moves records toward
// offline; heartbeats and registration own every other transition.
type Reaper struct {
	records     Records
	broadcaster Broadcaster
	interval    time.Duration
	ttls        map[domain.EntityKind]time.Duration
	log         zerolog.Logger
}

// New creates a reaper sweeping on the given interval with per-kind TTLs.
func New(records Records, b Broadcaster, interval time.Duration, ttls map[domain.EntityKind]time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{
		records:     records,
		broadcaster: b,
		interval:    interval,
		ttls:        ttls,
		log:         log.With().Str("component", "reaper").Logger(),
	}
}

// Run sweeps until ctx is done. A panicking sweep is logged and the loop
// continues with the next tick. A non-positive interval disables the reaper.
func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Warn().Dur("interval", r.interval).Msg("reaper disabled")
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-t.C:
			r.safeSweep()
		}
	}
}

func (r *Reaper) safeSweep() {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Any("panic", p).Msg("sweep panicked")
		}
	}()
	r.Sweep()
}

// Sweep runs one pass over all kinds. Each flipped record produces exactly
// one offline event; records already offline produce nothing.
func (r *Reaper) Sweep() {
	for kind, ttl := range r.ttls {
		flipped := r.records.MarkStale(kind, ttl)
		for _, id := range flipped {
			r.log.Info().Str("kind", string(kind)).Str("id", id).Msg("marked offline")
			r.broadcaster.Broadcast(kindChannel[kind], protocol.Event(
				string(kind)+"_offline",
				map[string]any{"id": id},
			))
		}
	}
}
