package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type creditMutation struct {
	Account string  `json:"account"`
	Amount  float64 `json:"amount"`
}

type transferRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// GetBalance returns the account balance; unknown accounts report zero.
func (h *Handler) GetBalance(c echo.Context) error {
	account := c.Param("account")
	return c.JSON(http.StatusOK, map[string]any{
		"account": account,
		"balance": h.ledger.Balance(account),
	})
}

// CreditAccount increases an account balance.
func (h *Handler) CreditAccount(c echo.Context) error {
	var req creditMutation
	if err := c.Bind(&req); err != nil || req.Account == "" {
		return errorJSON(c, http.StatusBadRequest, "account and amount are required")
	}
	if err := h.ledger.Credit(c.Request().Context(), req.Account, req.Amount); err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "credited",
		"account": req.Account,
		"balance": h.ledger.Balance(req.Account),
	})
}

// DebitAccount decreases an account balance if it can cover the amount.
func (h *Handler) DebitAccount(c echo.Context) error {
	var req creditMutation
	if err := c.Bind(&req); err != nil || req.Account == "" {
		return errorJSON(c, http.StatusBadRequest, "account and amount are required")
	}
	if err := h.ledger.Debit(c.Request().Context(), req.Account, req.Amount); err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "debited",
		"account": req.Account,
		"balance": h.ledger.Balance(req.Account),
	})
}

// TransferCredits moves credits between two accounts atomically.
func (h *Handler) TransferCredits(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil || req.From == "" || req.To == "" {
		return errorJSON(c, http.StatusBadRequest, "from, to and amount are required")
	}
	if err := h.ledger.Transfer(c.Request().Context(), req.From, req.To, req.Amount); err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "transferred",
		"amount":       req.Amount,
		"from":         req.From,
		"to":           req.To,
		"from_balance": h.ledger.Balance(req.From),
		"to_balance":   h.ledger.Balance(req.To),
	})
}

// CreditHistory returns the newest journal entries for an account.
func (h *Handler) CreditHistory(c echo.Context) error {
	account := c.Param("account")
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	if h.journal == nil {
		return c.JSON(http.StatusOK, map[string]any{"account": account, "transactions": []any{}})
	}
	txs, err := h.journal.ListTransactions(c.Request().Context(), account, limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"account":      account,
		"transactions": txs,
	})
}
