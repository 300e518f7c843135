package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/registry"
)

type capturedEvent struct {
	channel string
	message any
}

type captureBroadcaster struct {
	events []capturedEvent
}

func (b *captureBroadcaster) Broadcast(channel string, message any) {
	b.events = append(b.events, capturedEvent{channel: channel, message: message})
}

func eventType(msg any) string {
	m, _ := msg.(map[string]any)
	s, _ := m["type"].(string)
	return s
}

func TestSweepBroadcastsOneEventPerFlip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := registry.New(zerolog.Nop(), registry.WithClock(func() time.Time { return now }))
	reg.RegisterNode(domain.Node{NodeID: "n1", PublicKey: "pk"})
	reg.RegisterAgent(domain.Agent{AgentID: "a1", Name: "worker"})

	b := &captureBroadcaster{}
	r := New(reg, b, time.Minute, map[domain.EntityKind]time.Duration{
		domain.KindNode:  5 * time.Minute,
		domain.KindAgent: 10 * time.Minute,
	}, zerolog.Nop())

	// Nothing is stale yet.
	r.Sweep()
	assert.Empty(t, b.events)

	now = now.Add(7 * time.Minute)
	r.Sweep()
	require.Len(t, b.events, 1)
	assert.Equal(t, "nodes", b.events[0].channel)
	assert.Equal(t, "node_offline", eventType(b.events[0].message))

	// The flipped node stays silent on the next sweep; the agent crosses
	// its own TTL later.
	now = now.Add(4 * time.Minute)
	r.Sweep()
	require.Len(t, b.events, 2)
	assert.Equal(t, "agents", b.events[1].channel)
	assert.Equal(t, "agent_offline", eventType(b.events[1].message))

	r.Sweep()
	assert.Len(t, b.events, 2)
}

func TestSweepLeavesFreshRecordsAlone(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := registry.New(zerolog.Nop(), registry.WithClock(func() time.Time { return now }))
	reg.RegisterNode(domain.Node{NodeID: "n1", PublicKey: "pk"})

	b := &captureBroadcaster{}
	r := New(reg, b, time.Minute, map[domain.EntityKind]time.Duration{
		domain.KindNode: 5 * time.Minute,
	}, zerolog.Nop())

	now = now.Add(4 * time.Minute)
	r.Sweep()
	assert.Empty(t, b.events)

	n, _ := reg.GetNode("n1")
	assert.Equal(t, domain.NodeStatusOnline, n.Status)
}

func TestRunNonPositiveIntervalReturns(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	b := &captureBroadcaster{}
	r := New(reg, b, 0, map[domain.EntityKind]time.Duration{
		domain.KindNode: 5 * time.Minute,
	}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a non-positive interval")
	}
}

func TestHeartbeatBetweenSweepsPreventsFlip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := registry.New(zerolog.Nop(), registry.WithClock(func() time.Time { return now }))
	reg.RegisterNode(domain.Node{NodeID: "n1", PublicKey: "pk"})

	b := &captureBroadcaster{}
	r := New(reg, b, time.Minute, map[domain.EntityKind]time.Duration{
		domain.KindNode: 5 * time.Minute,
	}, zerolog.Nop())

	now = now.Add(4 * time.Minute)
	reg.TouchNode("n1", 0)

	now = now.Add(4 * time.Minute)
	r.Sweep()
	assert.Empty(t, b.events)
}
