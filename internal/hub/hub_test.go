package hub

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeSender records everything sent to it and can be told to fail.
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	fail error
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = string(m)
	}
	return out
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestConnectDisconnect(t *testing.T) {
	r := newTestRegistry()
	r.Connect("c1", &fakeSender{})
	assert.Equal(t, 1, r.ConnectionCount())

	r.Disconnect("c1")
	assert.Equal(t, 0, r.ConnectionCount())

	// Double disconnect is a no-op.
	r.Disconnect("c1")
	assert.Equal(t, 0, r.ConnectionCount())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	r.Connect("c1", &fakeSender{})
	r.Subscribe("c1", "jobs")
	r.Subscribe("c1", "jobs")
	assert.Equal(t, []string{"c1"}, r.SubscribersOf("jobs"))
}

func TestSubscribeUnknownConnectionIsDropped(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("ghost", "jobs")
	assert.Empty(t, r.SubscribersOf("jobs"))
}

func TestUnsubscribe(t *testing.T) {
	r := newTestRegistry()
	r.Connect("c1", &fakeSender{})
	r.Subscribe("c1", "jobs")
	r.Unsubscribe("c1", "jobs")
	assert.Empty(t, r.SubscribersOf("jobs"))

	// Unsubscribing a channel never joined is a no-op.
	r.Unsubscribe("c1", "nodes")
}

func TestDisconnectScrubsAgentRoutes(t *testing.T) {
	r := newTestRegistry()
	r.Connect("c1", &fakeSender{})
	r.Connect("c2", &fakeSender{})
	r.RegisterAgentRoute("agent-1", "c1")
	r.RegisterAgentRoute("agent-1", "c2")

	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsForAgent("agent-1"))

	r.Disconnect("c1")
	assert.Equal(t, []string{"c2"}, r.ConnectionsForAgent("agent-1"))

	r.Disconnect("c2")
	assert.Empty(t, r.ConnectionsForAgent("agent-1"))
}

func TestRegisterAgentRouteRequiresLiveConnection(t *testing.T) {
	r := newTestRegistry()
	r.RegisterAgentRoute("agent-1", "ghost")
	assert.Empty(t, r.ConnectionsForAgent("agent-1"))
}

func TestConnectReusedIDOverwrites(t *testing.T) {
	r := newTestRegistry()
	old := &fakeSender{}
	repl := &fakeSender{}
	r.Connect("c1", old)
	r.Subscribe("c1", "jobs")
	r.Connect("c1", repl)

	// The replacement starts with an empty subscription set.
	assert.Empty(t, r.SubscribersOf("jobs"))
	assert.Equal(t, 1, r.ConnectionCount())

	b := NewBroadcaster(r, zerolog.Nop())
	r.Subscribe("c1", "jobs")
	b.Broadcast("jobs", map[string]any{"n": 1})
	assert.Empty(t, old.messages())
	assert.Len(t, repl.messages(), 1)
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	s1, s2, s3 := &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Connect("c1", s1)
	r.Connect("c2", s2)
	r.Connect("c3", s3)
	r.Subscribe("c1", "jobs")
	r.Subscribe("c2", "nodes")

	b.Broadcast("jobs", map[string]any{"event": "x"})

	assert.Len(t, s1.messages(), 1)
	assert.Empty(t, s2.messages())
	assert.Empty(t, s3.messages())
}

// A subscriber joining after the broadcast never sees the message.
func TestLateSubscriberMissesBroadcast(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	s := &fakeSender{}
	r.Connect("c1", s)
	b.Broadcast("jobs", map[string]any{"n": 1})
	r.Subscribe("c1", "jobs")
	b.Broadcast("jobs", map[string]any{"n": 2})

	msgs := s.messages()
	assert.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `"n":2`)
}

func TestBroadcastDisconnectsFailedSender(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	good := &fakeSender{}
	bad := &fakeSender{fail: errors.New("buffer full")}
	r.Connect("good", good)
	r.Connect("bad", bad)
	r.Subscribe("good", "jobs")
	r.Subscribe("bad", "jobs")

	b.Broadcast("jobs", map[string]any{"n": 1})

	assert.Len(t, good.messages(), 1)
	assert.Equal(t, 1, r.ConnectionCount())
	assert.Equal(t, []string{"good"}, r.SubscribersOf("jobs"))
}

func TestSendToAgent(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	s := &fakeSender{}
	r.Connect("c1", s)
	r.RegisterAgentRoute("agent-1", "c1")

	assert.True(t, b.SendToAgent("agent-1", map[string]any{"cmd": "go"}))
	assert.Len(t, s.messages(), 1)

	assert.False(t, b.SendToAgent("agent-unknown", map[string]any{}))
}

func TestSendToConnection(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	s := &fakeSender{}
	r.Connect("c1", s)

	assert.NoError(t, b.SendToConnection("c1", map[string]any{"n": 1}))
	assert.Len(t, s.messages(), 1)

	assert.ErrorIs(t, b.SendToConnection("ghost", map[string]any{}), ErrUnknownConnection)
}

func TestSendToConnectionFailureDisconnects(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	sendErr := errors.New("closed")
	r.Connect("c1", &fakeSender{fail: sendErr})

	assert.ErrorIs(t, b.SendToConnection("c1", map[string]any{}), sendErr)
	assert.Equal(t, 0, r.ConnectionCount())
}

// Messages to one connection arrive in the order the calls were made.
func TestPerConnectionOrdering(t *testing.T) {
	r := newTestRegistry()
	b := NewBroadcaster(r, zerolog.Nop())

	s := &fakeSender{}
	r.Connect("c1", s)
	r.Subscribe("c1", "jobs")

	for i := 1; i <= 5; i++ {
		b.Broadcast("jobs", map[string]any{"seq": i})
	}

	msgs := s.messages()
	assert.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Contains(t, m, `"seq":`+strconv.Itoa(i+1))
	}
}
