package api

import (
	"math"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/strategy"
	"github.com/mtlprog/vault/internal/vaulterr"
)

type depositBody struct {
	Ledger string          `json:"ledger"`
	Amount decimal.Decimal `json:"amount"`
}

type withdrawBody struct {
	Ledger     string `json:"ledger"`
	Percentage int    `json:"percentage"`
}

type enabledBody struct {
	Enabled bool `json:"enabled"`
}

// Deposit handles POST /api/v1/strategies/{id}/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body depositBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	res, err := h.strategies.Deposit(r.Context(), strategy.DepositRequest{
		StrategyID: id,
		Account:    account,
		Ledger:     body.Ledger,
		Amount:     body.Amount,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, res)
}

// Withdraw handles POST /api/v1/strategies/{id}/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body withdrawBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if body.Percentage < 0 || body.Percentage > math.MaxUint8 {
		writeErr(w, vaulterr.NewValidation(vaulterr.ModuleAPI, 3, "percentage out of range"))
		return
	}

	res, err := h.strategies.Withdraw(r.Context(), strategy.WithdrawRequest{
		StrategyID: id,
		Account:    account,
		Ledger:     body.Ledger,
		Percentage: uint8(body.Percentage),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, res)
}

// Rebalance handles POST /api/v1/strategies/{id}/rebalance.
func (h *Handler) Rebalance(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := h.strategies.Rebalance(r.Context(), id, account)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, res)
}

// ListStrategies handles GET /api/v1/strategies.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	views, err := h.strategies.Strategies(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, views)
}

// GetStrategy handles GET /api/v1/strategies/{id}.
func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	v, err := h.strategies.Strategy(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, v)
}

// UserStrategies handles GET /api/v1/users/{account}/strategies.
func (h *Handler) UserStrategies(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	positions, err := h.strategies.UserStrategies(r.Context(), account)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, positions)
}

// UserPayouts handles GET /api/v1/users/{account}/payouts.
func (h *Handler) UserPayouts(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	payouts, err := h.strategies.PendingPayouts(r.Context(), account)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, payouts)
}

// ResetStrategy handles POST /api/v1/strategies/{id}/reset.
func (h *Handler) ResetStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.strategies.Reset(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// SetEnabled handles POST /api/v1/strategies/{id}/enabled.
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body enabledBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.strategies.SetEnabled(r.Context(), id, body.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, body)
}
