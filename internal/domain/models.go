package domain

import "time"

// Resources describes what a node brings to the mesh. Fields the control
// plane reasons about (tiering, contribution totals) are typed; anything
// else a node reports rides along in Extra.
type Resources struct {
	CPUCores int            `json:"cpu_cores"`
	MemoryGB float64        `json:"memory_gb"`
	GPUCount int            `json:"gpu_count"`
	GPUModel string         `json:"gpu_model,omitempty"`
	GFlops   float64        `json:"gflops,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Location is a coarse geo position used for the network view.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Node is a registered compute node.
type Node struct {
	NodeID        string            `json:"node_id"`
	PublicKey     string            `json:"public_key"`
	Arch          string            `json:"arch"`
	Resources     Resources         `json:"resources"`
	Status        NodeStatus        `json:"status"`
	LastSeen      time.Time         `json:"last_seen"`
	CreditsEarned float64           `json:"credits_earned"`
	Labels        map[string]string `json:"labels,omitempty"`
	CPUUsageHours float64           `json:"cpu_usage_hours"`
	GPUUsageHours float64           `json:"gpu_usage_hours"`
	Location      Location          `json:"location"`
}

// Tier returns the node's contribution tier from its accumulated usage.
func (n *Node) Tier() ContributionTier {
	return TierFor(n.CPUUsageHours + n.GPUUsageHours)
}

// AgentConfig is the mutable configuration an agent runs with.
type AgentConfig struct {
	Model         string   `json:"model"`
	Workspace     string   `json:"workspace"`
	MaxIterations int      `json:"max_iterations"`
	AutoApprove   bool     `json:"auto_approve"`
	ToolsEnabled  []string `json:"tools_enabled"`
	Temperature   float64  `json:"temperature"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
}

// DefaultAgentConfig returns the config applied when registration omits one.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:         "claude-3-5-sonnet-20241022",
		Workspace:     ".",
		MaxIterations: 10,
		ToolsEnabled:  []string{"job", "credit", "node", "wallet"},
		Temperature:   0.7,
	}
}

// Agent is a registered autonomous agent bound to a node.
type Agent struct {
	AgentID       string      `json:"agent_id"`
	Name          string      `json:"name"`
	NodeID        string      `json:"node_id"`
	Status        AgentStatus `json:"status"`
	Tools         []string    `json:"tools"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	CreatedAt     time.Time   `json:"created_at"`
	Config        AgentConfig `json:"config"`
	CreditsEarned float64     `json:"credits_earned"`
	CreditsSpent  float64     `json:"credits_spent"`
	JobsCompleted int         `json:"jobs_completed"`
	ErrorCount    int         `json:"error_count"`
}

// Job records the credit side of a submitted job. Scheduling lives with the
// orchestrators, not here.
type Job struct {
	JobID       string    `json:"job_id"`
	Account     string    `json:"account"`
	Spec        any       `json:"spec"`
	CreditCost  float64   `json:"credit_cost"`
	Priority    string    `json:"priority"`
	SubmittedAt time.Time `json:"submitted_at"`
	Cancelled   bool      `json:"cancelled"`
}
