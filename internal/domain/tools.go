package domain

// ToolDefinition describes one tool callable through the execute API.
// RateLimit is requests per minute per caller.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	RateLimit   int    `json:"rate_limit"`
}

// Tools is the catalog of tools the control plane exposes.
var Tools = map[string]ToolDefinition{
	"job_submit": {
		Name:        "job_submit",
		Description: "Submit a compute job to the mesh",
		Category:    "job",
		RateLimit:   30,
	},
	"job_list": {
		Name:        "job_list",
		Description: "List jobs submitted by the caller",
		Category:    "job",
		RateLimit:   60,
	},
	"credit_balance": {
		Name:        "credit_balance",
		Description: "Get current credit balance",
		Category:    "credit",
		RateLimit:   120,
	},
	"credit_transfer": {
		Name:        "credit_transfer",
		Description: "Transfer credits to another account",
		Category:    "credit",
		RateLimit:   30,
	},
	"credit_history": {
		Name:        "credit_history",
		Description: "Get credit transaction history",
		Category:    "credit",
		RateLimit:   60,
	},
	"node_status": {
		Name:        "node_status",
		Description: "Get status of a compute node",
		Category:    "node",
		RateLimit:   120,
	},
	"node_list": {
		Name:        "node_list",
		Description: "List registered compute nodes",
		Category:    "node",
		RateLimit:   60,
	},
	"node_contribution": {
		Name:        "node_contribution",
		Description: "Get contribution stats for a node",
		Category:    "node",
		RateLimit:   60,
	},
	"agent_spawn": {
		Name:        "agent_spawn",
		Description: "Spawn a new agent instance",
		Category:    "agent",
		RateLimit:   10,
	},
	"agent_self_terminate": {
		Name:        "agent_self_terminate",
		Description: "Terminate the calling agent (requires confirmation)",
		Category:    "agent",
		RateLimit:   5,
	},
}
