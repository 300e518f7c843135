package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/petrel-net/petrel/internal/ledger"
)

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// ledgerError maps ledger sentinel errors onto HTTP responses.
// Insufficient balance is an ordinary outcome, not a server failure.
func ledgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return errorJSON(c, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameAccount):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}
