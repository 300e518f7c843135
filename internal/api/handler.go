// Package api provides the HTTP handlers over the control-plane core.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/petrel-net/petrel/internal/config"
	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/hub"
	"github.com/petrel-net/petrel/internal/ledger"
	"github.com/petrel-net/petrel/internal/policy"
	"github.com/petrel-net/petrel/internal/ratelimit"
	"github.com/petrel-net/petrel/internal/registry"
)

// TransactionLister reads back the journal for the history endpoints.
type TransactionLister interface {
	ListTransactions(ctx context.Context, account string, limit int) ([]ledger.Transaction, error)
}

// Handler handles HTTP requests. It is thin glue: validation and response
// shaping around the core components.
type Handler struct {
	registry    *registry.Registry
	ledger      *ledger.Ledger
	limiter     *ratelimit.Limiter
	broadcaster *hub.Broadcaster
	connections *hub.Registry
	policy      *policy.Engine
	journal     TransactionLister
	cfg         *config.Config
	log         zerolog.Logger

	jobsMu sync.Mutex
	jobs   map[string]*domain.Job
}

// NewHandler creates a handler wired to the core components. journal may be
// nil; history endpoints then return empty lists.
func NewHandler(
	reg *registry.Registry,
	led *ledger.Ledger,
	lim *ratelimit.Limiter,
	b *hub.Broadcaster,
	conns *hub.Registry,
	pol *policy.Engine,
	journal TransactionLister,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		registry:    reg,
		ledger:      led,
		limiter:     lim,
		broadcaster: b,
		connections: conns,
		policy:      pol,
		journal:     journal,
		cfg:         cfg,
		log:         log.With().Str("component", "api").Logger(),
		jobs:        make(map[string]*domain.Job),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/nodes/register", h.RegisterNode)
	g.GET("/nodes", h.ListNodes)
	g.GET("/nodes/:node_id", h.GetNode)
	g.POST("/nodes/:node_id/heartbeat", h.NodeHeartbeat)
	g.GET("/nodes/:node_id/contribution", h.NodeContribution)
	g.GET("/network/leaderboard", h.Leaderboard)

	g.POST("/agents/register", h.RegisterAgent)
	g.GET("/agents", h.ListAgents)
	g.GET("/agents/:agent_id", h.GetAgent)
	g.POST("/agents/:agent_id/heartbeat", h.AgentHeartbeat)
	g.PUT("/agents/:agent_id/config", h.UpdateAgentConfig)
	g.DELETE("/agents/:agent_id", h.DeleteAgent)

	g.POST("/jobs/submit", h.SubmitJob)
	g.POST("/jobs/:job_id/cancel", h.CancelJob)

	g.GET("/credits/balance/:account", h.GetBalance)
	g.POST("/credits/credit", h.CreditAccount)
	g.POST("/credits/debit", h.DebitAccount)
	g.POST("/credits/transfer", h.TransferCredits)
	g.GET("/credits/history/:account", h.CreditHistory)

	g.GET("/tools", h.ListTools)
	g.POST("/tools/:tool_name/execute", h.ExecuteTool)

	g.GET("/health", h.Health)
	g.GET("/metrics", h.Metrics)
}

// Health returns health status and component counts.
func (h *Handler) Health(c echo.Context) error {
	nodes, nodesOnline, agents, agentsOnline := h.registry.Counts()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"components": map[string]any{
			"nodes":          nodes,
			"nodes_online":   nodesOnline,
			"agents":         agents,
			"agents_online":  agentsOnline,
			"ws_connections": h.connections.ConnectionCount(),
		},
	})
}

// Metrics returns system metrics.
func (h *Handler) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"metrics": h.StateSnapshot(),
	})
}

// StateSnapshot builds the counters shared by the metrics endpoint, the
// state_sync message and the periodic metrics broadcast.
func (h *Handler) StateSnapshot() map[string]any {
	_, nodesOnline, _, agentsOnline := h.registry.Counts()
	h.jobsMu.Lock()
	activeJobs := 0
	for _, j := range h.jobs {
		if !j.Cancelled {
			activeJobs++
		}
	}
	h.jobsMu.Unlock()

	total := 0.0
	for _, b := range h.ledger.Balances() {
		total += b
	}
	return map[string]any{
		"nodes_online":      nodesOnline,
		"agents_online":     agentsOnline,
		"active_jobs":       activeJobs,
		"ws_connections":    h.connections.ConnectionCount(),
		"total_circulating": total,
	}
}
