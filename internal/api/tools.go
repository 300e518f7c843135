package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/policy"
	"github.com/petrel-net/petrel/internal/protocol"
)

var (
	errNodeNotFound  = errors.New("node not found")
	errAgentNotFound = errors.New("agent not found")
)

// ListTools lists the tool catalog, optionally filtered by category.
func (h *Handler) ListTools(c echo.Context) error {
	category := c.QueryParam("category")
	tools := make([]domain.ToolDefinition, 0, len(domain.Tools))
	for _, t := range domain.Tools {
		if category != "" && t.Category != category {
			continue
		}
		tools = append(tools, t)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tools": tools,
		"total": len(tools),
	})
}

type toolExecution struct {
	AgentID    string         `json:"agent_id"`
	Parameters map[string]any `json:"parameters"`
}

// ExecuteTool runs one catalog tool for an agent: admission check against
// the tool's rate limit, policy gate, then dispatch.
func (h *Handler) ExecuteTool(c echo.Context) error {
	toolName := c.Param("tool_name")
	tool, ok := domain.Tools[toolName]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "tool not found")
	}

	var req toolExecution
	if err := c.Bind(&req); err != nil || req.AgentID == "" {
		return errorJSON(c, http.StatusBadRequest, "agent_id is required")
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	allowed, remaining := h.limiter.Check(req.AgentID+":"+toolName, tool.RateLimit, time.Minute)
	if !allowed {
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error":                "rate limit exceeded",
			"tool":                 toolName,
			"limit":                tool.RateLimit,
			"rate_limit_remaining": 0,
		})
	}

	decision, err := h.policy.Evaluate(c.Request().Context(), map[string]any{
		"tool_name": toolName,
		"caller_id": req.AgentID,
		"args":      req.Parameters,
	})
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	switch decision {
	case policy.DecisionBlock:
		return errorJSON(c, http.StatusForbidden, "blocked by policy")
	case policy.DecisionRequireApproval:
		return c.JSON(http.StatusAccepted, map[string]any{
			"status": "pending_approval",
			"tool":   toolName,
		})
	}

	start := time.Now()
	result, execErr := h.executeTool(c, toolName, req.AgentID, req.Parameters)
	durationMS := float64(time.Since(start).Microseconds()) / 1000

	status := "success"
	errText := ""
	if execErr != nil {
		status = "error"
		errText = execErr.Error()
	}

	h.broadcaster.Broadcast("tool_executions", protocol.Event("tool_executed", map[string]any{
		"agent_id":    req.AgentID,
		"tool_name":   toolName,
		"status":      status,
		"duration_ms": durationMS,
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"execution_id":         "exec-" + uuid.New().String()[:8],
		"tool_name":            toolName,
		"status":               status,
		"result":               result,
		"error":                errText,
		"duration_ms":          durationMS,
		"rate_limit_remaining": remaining,
	})
}

func (h *Handler) executeTool(c echo.Context, toolName, agentID string, params map[string]any) (any, error) {
	ctx := c.Request().Context()

	switch toolName {
	case "credit_balance":
		return map[string]any{"account": agentID, "balance": h.ledger.Balance(agentID)}, nil

	case "credit_transfer":
		to, _ := params["to"].(string)
		amount, _ := params["amount"].(float64)
		if err := h.ledger.Transfer(ctx, agentID, to, amount); err != nil {
			return nil, err
		}
		return map[string]any{"from": agentID, "to": to, "amount": amount}, nil

	case "credit_history":
		if h.journal == nil {
			return map[string]any{"transactions": []any{}}, nil
		}
		txs, err := h.journal.ListTransactions(ctx, agentID, 50)
		if err != nil {
			return nil, err
		}
		return map[string]any{"transactions": txs}, nil

	case "job_submit":
		cost := h.jobCost(asString(params["priority"]))
		if err := h.ledger.Debit(ctx, agentID, cost); err != nil {
			return nil, err
		}
		job := &domain.Job{
			JobID:       "job-" + uuid.New().String()[:12],
			Account:     agentID,
			Spec:        params["spec"],
			CreditCost:  cost,
			Priority:    asString(params["priority"]),
			SubmittedAt: time.Now().UTC(),
		}
		h.jobsMu.Lock()
		h.jobs[job.JobID] = job
		h.jobsMu.Unlock()
		h.broadcaster.Broadcast("jobs", protocol.Event("job_submitted", map[string]any{
			"job_id":      job.JobID,
			"account":     agentID,
			"credit_cost": cost,
		}))
		return map[string]any{"job_id": job.JobID, "status": "pending", "credit_cost": cost}, nil

	case "job_list":
		h.jobsMu.Lock()
		var jobs []domain.Job
		for _, j := range h.jobs {
			if j.Account == agentID {
				jobs = append(jobs, *j)
			}
		}
		h.jobsMu.Unlock()
		return map[string]any{"jobs": jobs, "total": len(jobs)}, nil

	case "node_status":
		node, ok := h.registry.GetNode(asString(params["node_id"]))
		if !ok {
			return nil, errNodeNotFound
		}
		return node, nil

	case "node_list":
		return h.registry.ListNodes(), nil

	case "node_contribution":
		node, ok := h.registry.GetNode(asString(params["node_id"]))
		if !ok {
			return nil, errNodeNotFound
		}
		return map[string]any{
			"node_id":         node.NodeID,
			"cpu_usage_hours": node.CPUUsageHours,
			"gpu_usage_hours": node.GPUUsageHours,
			"tier":            node.Tier(),
			"credits_earned":  node.CreditsEarned,
		}, nil

	case "agent_spawn":
		name := asString(params["name"])
		if name == "" {
			name = "spawned-" + uuid.New().String()[:6]
		}
		agent := h.registry.RegisterAgent(domain.Agent{
			AgentID: "agent-" + uuid.New().String()[:12],
			Name:    name,
			NodeID:  "virtual",
			Config:  domain.DefaultAgentConfig(),
			Tools:   domain.DefaultAgentConfig().ToolsEnabled,
		})
		h.broadcaster.Broadcast("agents", protocol.Event("agent_spawned", map[string]any{
			"parent_agent_id": agentID,
			"agent_id":        agent.AgentID,
			"name":            name,
		}))
		return map[string]any{"agent_id": agent.AgentID, "name": name}, nil

	case "agent_self_terminate":
		// The policy gate already required confirm=true to get here.
		agent, ok := h.registry.AgentHeartbeat(agentID, domain.AgentStatusOffline, nil, nil)
		if !ok {
			return nil, errAgentNotFound
		}
		h.broadcaster.Broadcast("agents", protocol.Event("agent_terminated", map[string]any{
			"agent_id": agentID,
			"name":     agent.Name,
		}))
		return map[string]any{"agent_id": agentID, "status": "terminated"}, nil
	}

	return nil, errors.New("unknown tool: " + toolName)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
