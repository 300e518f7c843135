package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/protocol"
)

// agentRegistration is the agent register request body.
type agentRegistration struct {
	AgentID string              `json:"agent_id"`
	Name    string              `json:"name"`
	NodeID  string              `json:"node_id"`
	Config  *domain.AgentConfig `json:"config"`
}

// RegisterAgent registers a new agent. When the named node is unknown a
// virtual node is created for it, as agents may run off-mesh.
func (h *Handler) RegisterAgent(c echo.Context) error {
	var req agentRegistration
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.NodeID == "" {
		return errorJSON(c, http.StatusBadRequest, "name and node_id are required")
	}
	if req.AgentID == "" {
		req.AgentID = "agent-" + uuid.New().String()[:12]
	}
	cfg := domain.DefaultAgentConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	if _, ok := h.registry.GetNode(req.NodeID); !ok && req.NodeID != "virtual" {
		h.registry.RegisterNode(domain.Node{
			NodeID:    req.NodeID,
			PublicKey: "agent-" + req.AgentID,
			Arch:      "x86_64",
			Resources: domain.Resources{CPUCores: 1, MemoryGB: 1},
			Labels:    map[string]string{"type": "agent", "agent_id": req.AgentID},
		})
	}

	agent := h.registry.RegisterAgent(domain.Agent{
		AgentID: req.AgentID,
		Name:    req.Name,
		NodeID:  req.NodeID,
		Status:  domain.AgentStatusInitializing,
		Tools:   cfg.ToolsEnabled,
		Config:  cfg,
	})

	h.broadcaster.Broadcast("agents", protocol.Event("agent_registered", map[string]any{
		"agent_id": agent.AgentID,
		"name":     agent.Name,
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "registered",
		"agent_id": agent.AgentID,
		"tools":    agent.Tools,
	})
}

// GetAgent returns agent details.
func (h *Handler) GetAgent(c echo.Context) error {
	agent, ok := h.registry.GetAgent(c.Param("agent_id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "agent not found")
	}
	return c.JSON(http.StatusOK, agent)
}

// ListAgents lists registered agents, optionally filtered by status.
func (h *Handler) ListAgents(c echo.Context) error {
	agents := h.registry.ListAgents(domain.AgentStatus(c.QueryParam("status")))
	return c.JSON(http.StatusOK, map[string]any{
		"agents": agents,
		"total":  len(agents),
	})
}

// agentHeartbeat is the agent heartbeat request body. Pointer fields are
// only applied when present.
type agentHeartbeat struct {
	Status        domain.AgentStatus `json:"status"`
	JobsCompleted *int               `json:"jobs_completed"`
	CreditsEarned *float64           `json:"credits_earned"`
}

// AgentHeartbeat refreshes an agent's liveness and optionally its status
// and counters.
func (h *Handler) AgentHeartbeat(c echo.Context) error {
	var req agentHeartbeat
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	agent, ok := h.registry.AgentHeartbeat(c.Param("agent_id"), req.Status, req.JobsCompleted, req.CreditsEarned)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "agent not found")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"config": agent.Config,
	})
}

// UpdateAgentConfig replaces an agent's config and pushes the update to any
// connection routed to it.
func (h *Handler) UpdateAgentConfig(c echo.Context) error {
	var cfg domain.AgentConfig
	if err := c.Bind(&cfg); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	agentID := c.Param("agent_id")
	agent, ok := h.registry.UpdateAgentConfig(agentID, cfg)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "agent not found")
	}

	h.broadcaster.SendToAgent(agentID, protocol.Event("config_update", map[string]any{
		"agent_id": agentID,
		"config":   agent.Config,
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "updated",
		"agent_id": agentID,
		"config":   agent.Config,
	})
}

// DeleteAgent deregisters an agent and announces the termination.
func (h *Handler) DeleteAgent(c echo.Context) error {
	agentID := c.Param("agent_id")
	agent, ok := h.registry.DeleteAgent(agentID)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "agent not found")
	}

	h.broadcaster.Broadcast("agents", protocol.Event("agent_terminated", map[string]any{
		"agent_id": agentID,
		"name":     agent.Name,
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "deleted",
		"agent_id": agentID,
	})
}
