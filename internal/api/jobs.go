package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/protocol"
)

type jobSubmission struct {
	Account  string `json:"account"`
	Spec     any    `json:"spec"`
	Priority string `json:"priority"`
}

// jobCost prices a submission. High priority doubles the configured cost;
// the numbers are policy, configured not derived.
func (h *Handler) jobCost(priority string) float64 {
	cost := h.cfg.SubmissionCost
	if priority == "high" {
		cost *= h.cfg.HighPriorityMultiplier
	}
	return cost
}

// SubmitJob debits the submission cost and records the job. Scheduling is
// an orchestrator concern; only the credit side lives here.
func (h *Handler) SubmitJob(c echo.Context) error {
	var req jobSubmission
	if err := c.Bind(&req); err != nil || req.Account == "" {
		return errorJSON(c, http.StatusBadRequest, "account is required")
	}

	cost := h.jobCost(req.Priority)
	if err := h.ledger.Debit(c.Request().Context(), req.Account, cost); err != nil {
		return ledgerError(c, err)
	}

	job := &domain.Job{
		JobID:       "job-" + uuid.New().String()[:12],
		Account:     req.Account,
		Spec:        req.Spec,
		CreditCost:  cost,
		Priority:    req.Priority,
		SubmittedAt: time.Now().UTC(),
	}
	h.jobsMu.Lock()
	h.jobs[job.JobID] = job
	h.jobsMu.Unlock()

	h.broadcaster.Broadcast("jobs", protocol.Event("job_submitted", map[string]any{
		"job_id":      job.JobID,
		"account":     job.Account,
		"credit_cost": job.CreditCost,
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"status":            "accepted",
		"job_id":            job.JobID,
		"credit_deducted":   cost,
		"remaining_balance": h.ledger.Balance(req.Account),
	})
}

// CancelJob cancels a job and refunds the configured fraction of its cost.
func (h *Handler) CancelJob(c echo.Context) error {
	jobID := c.Param("job_id")

	h.jobsMu.Lock()
	job, ok := h.jobs[jobID]
	if ok && job.Cancelled {
		h.jobsMu.Unlock()
		return errorJSON(c, http.StatusConflict, "job already cancelled")
	}
	if ok {
		job.Cancelled = true
	}
	h.jobsMu.Unlock()
	if !ok {
		return errorJSON(c, http.StatusNotFound, "job not found")
	}

	refund := job.CreditCost * h.cfg.RefundFraction
	if refund > 0 {
		if err := h.ledger.Credit(c.Request().Context(), job.Account, refund); err != nil {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("refund failed")
		}
	}

	h.broadcaster.Broadcast("jobs", protocol.Event("job_cancelled", map[string]any{
		"job_id":  jobID,
		"account": job.Account,
		"refund":  refund,
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"status":            "cancelled",
		"job_id":            jobID,
		"refund_amount":     refund,
		"remaining_balance": h.ledger.Balance(job.Account),
	})
}
