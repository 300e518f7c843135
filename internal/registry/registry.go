// Package registry keeps the live records of compute nodes and agents:
// registration, heartbeats and staleness. It is the in-memory source of
// truth the reaper sweeps and the API reads.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrel-net/petrel/internal/domain"
)

// Registry owns the node and agent maps. All mutations run under one mutex;
// reads return copies so callers never alias registry-owned state.
type Registry struct {
	mu     sync.Mutex
	nodes  map[string]*domain.Node
	agents map[string]*domain.Agent

	now func() time.Time
	log zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry.
func New(log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		nodes:  make(map[string]*domain.Node),
		agents: make(map[string]*domain.Agent),
		now:    time.Now,
		log:    log.With().Str("component", "registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterNode creates the node or, if the id is already known,
// refreshes its registration and brings it back online.
func (r *Registry) RegisterNode(n domain.Node) domain.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if existing, ok := r.nodes[n.NodeID]; ok {
		existing.LastSeen = now
		existing.Status = domain.NodeStatusOnline
		existing.PublicKey = n.PublicKey
		existing.Arch = n.Arch
		existing.Resources = n.Resources
		existing.Labels = n.Labels
		r.log.Info().Str("node_id", n.NodeID).Msg("node re-registered")
		return *existing
	}
	n.LastSeen = now
	n.Status = domain.NodeStatusOnline
	stored := n
	r.nodes[n.NodeID] = &stored
	r.log.Info().Str("node_id", n.NodeID).Msg("node registered")
	return stored
}

// GetNode returns a copy of the node, if known.
func (r *Registry) GetNode(nodeID string) (domain.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return domain.Node{}, false
	}
	return *n, true
}

// ListNodes returns copies of all nodes, sorted by id.
func (r *Registry) ListNodes() []domain.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// TouchNode records a node heartbeat: resets last-seen, revives an offline
// node and accrues earn credits onto its contribution total.
func (r *Registry) TouchNode(nodeID string, earn float64) (domain.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return domain.Node{}, false
	}
	n.LastSeen = r.now()
	if n.Status == domain.NodeStatusOffline {
		n.Status = domain.NodeStatusOnline
	}
	n.CreditsEarned += earn
	return *n, true
}

// RegisterAgent creates or replaces an agent record.
func (r *Registry) RegisterAgent(a domain.Agent) domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	a.LastHeartbeat = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.Status == "" {
		a.Status = domain.AgentStatusInitializing
	}
	stored := a
	r.agents[a.AgentID] = &stored
	r.log.Info().Str("agent_id", a.AgentID).Str("name", a.Name).Msg("agent registered")
	return stored
}

// GetAgent returns a copy of the agent, if known.
func (r *Registry) GetAgent(agentID string) (domain.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	return *a, true
}

// ListAgents returns copies of agents, optionally filtered by status,
// sorted by id.
func (r *Registry) ListAgents(status domain.AgentStatus) []domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AgentHeartbeat records an agent heartbeat. A reported status overrides
// the current one; an offline agent with no reported status comes back idle.
func (r *Registry) AgentHeartbeat(agentID string, status domain.AgentStatus, jobsCompleted *int, creditsEarned *float64) (domain.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	a.LastHeartbeat = r.now()
	if status != "" {
		a.Status = status
	} else if a.Status == domain.AgentStatusOffline {
		a.Status = domain.AgentStatusIdle
	}
	if jobsCompleted != nil {
		a.JobsCompleted = *jobsCompleted
	}
	if creditsEarned != nil {
		a.CreditsEarned = *creditsEarned
	}
	return *a, true
}

// UpdateAgentConfig replaces an agent's config and mirrors the enabled
// tools onto the record.
func (r *Registry) UpdateAgentConfig(agentID string, cfg domain.AgentConfig) (domain.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	a.Config = cfg
	if len(cfg.ToolsEnabled) > 0 {
		a.Tools = cfg.ToolsEnabled
	}
	return *a, true
}

// DeleteAgent removes an agent record. Explicit deregistration is the only
// path that deletes; the reaper never does.
func (r *Registry) DeleteAgent(agentID string) (domain.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	delete(r.agents, agentID)
	return *a, true
}

// Touch resets the liveness of an entity of the given kind, reviving it if
// offline. It is the generic heartbeat entry point.
func (r *Registry) Touch(entityID string, kind domain.EntityKind) bool {
	switch kind {
	case domain.KindNode:
		_, ok := r.TouchNode(entityID, 0)
		return ok
	case domain.KindAgent:
		_, ok := r.AgentHeartbeat(entityID, "", nil, nil)
		return ok
	}
	return false
}

// MarkStale flips every record of the kind whose last heartbeat is at least
// ttl old, and is not already offline, to offline. It returns the ids that
// flipped, each exactly once. Records are never deleted here.
func (r *Registry) MarkStale(kind domain.EntityKind, ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []string
	switch kind {
	case domain.KindNode:
		for id, n := range r.nodes {
			if n.Status != domain.NodeStatusOffline && !n.LastSeen.After(cutoff) {
				n.Status = domain.NodeStatusOffline
				flipped = append(flipped, id)
			}
		}
	case domain.KindAgent:
		for id, a := range r.agents {
			if a.Status != domain.AgentStatusOffline && !a.LastHeartbeat.After(cutoff) {
				a.Status = domain.AgentStatusOffline
				flipped = append(flipped, id)
			}
		}
	}
	sort.Strings(flipped)
	return flipped
}

// Counts returns totals used by the health and metrics endpoints.
func (r *Registry) Counts() (nodes, nodesOnline, agents, agentsOnline int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes = len(r.nodes)
	agents = len(r.agents)
	for _, n := range r.nodes {
		if n.Status == domain.NodeStatusOnline {
			nodesOnline++
		}
	}
	for _, a := range r.agents {
		if a.Status != domain.AgentStatusOffline {
			agentsOnline++
		}
	}
	return
}

// Leaderboard returns the top nodes by total usage hours.
func (r *Registry) Leaderboard(limit int) []domain.Node {
	nodes := r.ListNodes()
	sort.Slice(nodes, func(i, j int) bool {
		ti := nodes[i].CPUUsageHours + nodes[i].GPUUsageHours
		tj := nodes[j].CPUUsageHours + nodes[j].GPUUsageHours
		if ti != tj {
			return ti > tj
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes
}
