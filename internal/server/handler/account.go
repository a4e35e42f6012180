package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceService defines the ledger query methods the handler requires.
type BalanceService interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// AccountHandler serves account-related endpoints.
type AccountHandler struct {
	balances BalanceService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(balances BalanceService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		balances: balances,
		logger:   logHandler(logger, "account"),
	}
}

// GetBalance returns an account's token balance as a decimal string.
// GET /api/accounts/{address}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed account address")
		return
	}

	balance, err := h.balances.BalanceOf(r.Context(), addr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "balance lookup failed",
			slog.String("account", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": addr.Hex(),
		"balance": balance.String(),
	})
}
