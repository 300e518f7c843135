// Package hub tracks live observer connections, their channel subscriptions
// and agent routes, and fans events out to them.
package hub

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnknownConnection is returned by unicast sends to an id the registry
// does not know.
var ErrUnknownConnection = errors.New("unknown connection")

// Sender delivers one message to a connection. Implementations must not
// block on network I/O; a full outbound buffer is a send failure.
type Sender interface {
	Send(data []byte) error
}

type connection struct {
	sender   Sender
	channels map[string]struct{}
}

// Registry owns the connection, subscription and agent-route state. Every
// mutation happens under one mutex; reads hand out snapshots so callers can
// iterate without holding the lock.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]*connection
	agents map[string]map[string]struct{} // agent id -> set of connection ids
	log    zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*connection),
		agents: make(map[string]map[string]struct{}),
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Connect registers a connection with an empty subscription set. Reusing a
// live id is a caller error; the old connection is overwritten with a
// warning so the registry never holds two senders for one id.
func (r *Registry) Connect(connID string, s Sender) {
	r.mu.Lock()
	if _, ok := r.conns[connID]; ok {
		r.log.Warn().Str("conn_id", connID).Msg("connection id reused, overwriting")
	}
	r.conns[connID] = &connection{
		sender:   s,
		channels: make(map[string]struct{}),
	}
	r.mu.Unlock()
	r.log.Info().Str("conn_id", connID).Msg("connection registered")
}

// Disconnect removes the connection, all its subscriptions and any agent
// routes referencing it. Unknown ids are a no-op: the failed-send path and
// the session-close path may both disconnect the same connection.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	if _, ok := r.conns[connID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	for agentID, set := range r.agents {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.agents, agentID)
		}
	}
	r.mu.Unlock()
	r.log.Info().Str("conn_id", connID).Msg("connection unregistered")
}

// Subscribe adds the connection to a channel. Idempotent; silently dropped
// if the connection is unknown (it may have disconnected concurrently).
func (r *Registry) Subscribe(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connID]; ok {
		conn.channels[channel] = struct{}{}
	}
}

// Unsubscribe removes the connection from a channel. No-op if the
// connection is unknown or not subscribed.
func (r *Registry) Unsubscribe(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connID]; ok {
		delete(conn.channels, channel)
	}
}

// RegisterAgentRoute associates a connection with an agent. Many
// connections may watch one agent and one connection may watch many agents.
func (r *Registry) RegisterAgentRoute(agentID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	if r.agents[agentID] == nil {
		r.agents[agentID] = make(map[string]struct{})
	}
	r.agents[agentID][connID] = struct{}{}
}

// SubscribersOf returns a snapshot of the connection ids currently
// subscribed to a channel.
func (r *Registry) SubscribersOf(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, conn := range r.conns {
		if _, ok := conn.channels[channel]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ConnectionsForAgent returns a snapshot of the connection ids routed to an
// agent, or empty if none.
func (r *Registry) ConnectionsForAgent(agentID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id := range r.agents[agentID] {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// target pairs a connection id with its sender for delivery outside the
// registry lock.
type target struct {
	id     string
	sender Sender
}

func (r *Registry) subscriberTargets(channel string) []target {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []target
	for id, conn := range r.conns {
		if _, ok := conn.channels[channel]; ok {
			out = append(out, target{id: id, sender: conn.sender})
		}
	}
	return out
}

func (r *Registry) agentTargets(agentID string) []target {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []target
	for id := range r.agents[agentID] {
		if conn, ok := r.conns[id]; ok {
			out = append(out, target{id: id, sender: conn.sender})
		}
	}
	return out
}

func (r *Registry) connectionTarget(connID string) (target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return target{}, false
	}
	return target{id: connID, sender: conn.sender}, true
}
