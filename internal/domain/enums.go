// Package domain defines the core domain models for the control plane.
package domain

// NodeStatus represents the lifecycle status of a compute node.
type NodeStatus string

const (
	NodeStatusOnline      NodeStatus = "online"
	NodeStatusOffline     NodeStatus = "offline"
	NodeStatusMaintenance NodeStatus = "maintenance"
	NodeStatusSuspended   NodeStatus = "suspended"
)

// AgentStatus represents the lifecycle status of an agent.
type AgentStatus string

const (
	AgentStatusInitializing AgentStatus = "initializing"
	AgentStatusIdle         AgentStatus = "idle"
	AgentStatusWorking      AgentStatus = "working"
	AgentStatusError        AgentStatus = "error"
	AgentStatusOffline      AgentStatus = "offline"
)

// EntityKind discriminates the liveness record families tracked by the
// registry. The reaper keys its TTLs by kind.
type EntityKind string

const (
	KindNode  EntityKind = "node"
	KindAgent EntityKind = "agent"
)

// ContributionTier is the ladder a node climbs as it accrues usage hours.
type ContributionTier string

const (
	TierBronze    ContributionTier = "bronze"
	TierSilver    ContributionTier = "silver"
	TierGold      ContributionTier = "gold"
	TierDiamond   ContributionTier = "diamond"
	TierLegendary ContributionTier = "legendary"
)

// TierFor maps total usage hours onto a contribution tier.
func TierFor(totalHours float64) ContributionTier {
	switch {
	case totalHours >= 10000:
		return TierLegendary
	case totalHours >= 5000:
		return TierDiamond
	case totalHours >= 1000:
		return TierGold
	case totalHours >= 100:
		return TierSilver
	default:
		return TierBronze
	}
}
