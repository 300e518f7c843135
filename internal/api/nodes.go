package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/petrel-net/petrel/internal/domain"
)

// nodeRegistration is the node register request body.
type nodeRegistration struct {
	NodeID    string            `json:"node_id"`
	PublicKey string            `json:"public_key"`
	Arch      string            `json:"arch"`
	Resources domain.Resources  `json:"resources"`
	Labels    map[string]string `json:"labels"`
	Location  domain.Location   `json:"location"`
}

// RegisterNode registers a new compute node; re-registering refreshes the
// record and brings it back online.
func (h *Handler) RegisterNode(c echo.Context) error {
	var req nodeRegistration
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.NodeID == "" || req.PublicKey == "" {
		return errorJSON(c, http.StatusBadRequest, "node_id and public_key are required")
	}

	node := h.registry.RegisterNode(domain.Node{
		NodeID:    req.NodeID,
		PublicKey: req.PublicKey,
		Arch:      req.Arch,
		Resources: req.Resources,
		Labels:    req.Labels,
		Location:  req.Location,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"status":              "registered",
		"node_id":             node.NodeID,
		"credit_earning_rate": h.cfg.CreditEarningRate,
	})
}

// ListNodes lists all registered nodes.
func (h *Handler) ListNodes(c echo.Context) error {
	nodes := h.registry.ListNodes()
	online := 0
	for _, n := range nodes {
		if n.Status == domain.NodeStatusOnline {
			online++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"nodes":  nodes,
		"total":  len(nodes),
		"online": online,
	})
}

// GetNode returns node details.
func (h *Handler) GetNode(c echo.Context) error {
	node, ok := h.registry.GetNode(c.Param("node_id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "node not found")
	}
	return c.JSON(http.StatusOK, node)
}

// NodeHeartbeat refreshes a node's liveness and accrues earning credits.
func (h *Handler) NodeHeartbeat(c echo.Context) error {
	node, ok := h.registry.TouchNode(c.Param("node_id"), h.cfg.CreditEarningRate)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "node not found")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"last_seen":      node.LastSeen,
		"credits_earned": node.CreditsEarned,
	})
}

// NodeContribution returns a node's share of the network totals.
func (h *Handler) NodeContribution(c echo.Context) error {
	node, ok := h.registry.GetNode(c.Param("node_id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "node not found")
	}

	nodes := h.registry.ListNodes()
	var totalCPU, totalGPU float64
	for _, n := range nodes {
		totalCPU += n.CPUUsageHours
		totalGPU += n.GPUUsageHours
	}
	cpuPercent, gpuPercent := 0.0, 0.0
	if totalCPU > 0 {
		cpuPercent = node.CPUUsageHours / totalCPU * 100
	}
	if totalGPU > 0 {
		gpuPercent = node.GPUUsageHours / totalGPU * 100
	}

	return c.JSON(http.StatusOK, map[string]any{
		"node_id": node.NodeID,
		"contribution": map[string]any{
			"cpu_usage_hours":    node.CPUUsageHours,
			"cpu_percent":        cpuPercent,
			"gpu_usage_hours":    node.GPUUsageHours,
			"gpu_percent":        gpuPercent,
			"resources":          node.Resources,
		},
		"tier":           node.Tier(),
		"credits_earned": node.CreditsEarned,
	})
}

// Leaderboard returns the top contributing nodes.
func (h *Handler) Leaderboard(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	nodes := h.registry.Leaderboard(limit)
	entries := make([]map[string]any, 0, len(nodes))
	for rank, n := range nodes {
		entries = append(entries, map[string]any{
			"rank":           rank + 1,
			"node_id":        n.NodeID,
			"tier":           n.Tier(),
			"cpu_hours":      n.CPUUsageHours,
			"gpu_hours":      n.GPUUsageHours,
			"total_hours":    n.CPUUsageHours + n.GPUUsageHours,
			"credits_earned": n.CreditsEarned,
			"status":         n.Status,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"leaderboard": entries,
		"total":       len(entries),
	})
}
