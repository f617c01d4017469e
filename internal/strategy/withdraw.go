package strategy

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/dex"
	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// WithdrawRequest asks to burn Percentage of the caller's shares.
type WithdrawRequest struct {
	StrategyID ID
	Account    domain.Account
	Ledger     string
	Percentage uint8
}

// WithdrawResult reports the caller's remaining shares and what was paid out
// in the base token.
type WithdrawResult struct {
	CurrentShares decimal.Decimal `json:"currentShares"`
	Amount        decimal.Decimal `json:"amount"`
}

const (
	payoutReasonWithdraw  = "withdraw_payout"
	payoutReasonUnswapped = "withdraw_unswapped"
)

// Withdraw burns a percentage of the caller's shares, pulls the matching
// fraction of the position out of the pool and pays it out in the base token.
// The withdrawer bears pool slippage. Once the pool has paid out the shares
// stay burned; an amount that cannot be swapped or transferred is queued.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (WithdrawResult, error) {
	unlock, err := e.acquire(ctx, req.StrategyID)
	if err != nil {
		return WithdrawResult{}, err
	}
	defer unlock()

	o := e.begin(ctx, req.StrategyID, req.Account)
	if err := o.start(&event.WithdrawStarted{Ledger: req.Ledger, Percentage: req.Percentage}); err != nil {
		return WithdrawResult{}, err
	}

	res, burned, txID, err := e.withdraw(o, req)
	if err != nil {
		ve := vaulterr.Response(err)
		o.emit(&event.WithdrawFailed{Percentage: req.Percentage, Error: ve})
		logFailure("withdraw failed", o, ve)
		return WithdrawResult{}, ve
	}

	o.emit(&event.WithdrawCompleted{
		Amount:        res.Amount,
		SharesBurned:  burned,
		CurrentShares: res.CurrentShares,
		TxID:          txID,
	})
	slog.Info("withdraw completed",
		"correlation_id", o.correlationID,
		"strategy_id", req.StrategyID,
		"account", req.Account,
		"percentage", req.Percentage,
		"shares_burned", burned.String(),
		"amount", res.Amount.String())
	return res, nil
}

func (e *Engine) withdraw(o *op, req WithdrawRequest) (WithdrawResult, decimal.Decimal, *uint64, error) {
	s, err := e.load(o.ctx, req.StrategyID)
	if err != nil {
		return WithdrawResult{}, decimal.Zero, nil, err
	}
	sid := s.ID.String()

	if req.Percentage > 100 {
		return WithdrawResult{}, decimal.Zero, nil, vaulterr.NewValidation(vaulterr.ModuleStrategy, 20, "percentage must be between 0 and 100",
			"strategy_id", sid)
	}
	if req.Ledger != s.BaseToken {
		return WithdrawResult{}, decimal.Zero, nil, vaulterr.NewValidation(vaulterr.ModuleStrategy, 21, "ledger does not match strategy base token",
			"strategy_id", sid, "ledger", req.Ledger, "base_token", s.BaseToken)
	}
	shares := s.SharesOf(req.Account)
	if shares.IsZero() {
		return WithdrawResult{}, decimal.Zero, nil, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 22, "no shares in strategy",
			"strategy_id", sid, "account", req.Account.String())
	}
	burn := SharesToBurn(shares, req.Percentage)
	if burn.IsZero() {
		return WithdrawResult{CurrentShares: shares, Amount: decimal.Zero}, decimal.Zero, nil, nil
	}
	if s.CurrentPool == nil || s.PositionID == nil {
		return WithdrawResult{}, decimal.Zero, nil, vaulterr.NewNotFound(vaulterr.ModuleStrategy, 23, "strategy has no current pool",
			"strategy_id", sid, "saga_state", string(s.Saga.State))
	}
	p, err := e.lookupPool(o.ctx, *s.CurrentPool)
	if err != nil {
		return WithdrawResult{}, decimal.Zero, nil, err
	}

	positionID := *s.PositionID
	out, err := o.withdrawLiquidity(p, positionID, dex.Fraction{Shares: burn, TotalShares: s.TotalShares})
	if err != nil {
		return WithdrawResult{}, decimal.Zero, nil, err
	}

	// The burn is recorded before anything is paid out. If it cannot be, the
	// withdrawn amounts go back into the position and the shares stay.
	remaining := s.applyWithdraw(req.Account, burn)
	if err := e.persist(o.ctx, s); err != nil {
		slog.Error("withdraw not recorded after pool withdrawal, restoring position",
			"correlation_id", o.correlationID,
			"strategy_id", s.ID,
			"account", req.Account,
			"shares_burned", burn.String(),
			"error", err)
		if _, rerr := o.addPair(p, &positionID, out.Amount0, out.Amount1); rerr != nil {
			slog.Error("withdrawn liquidity held in vault",
				"correlation_id", o.correlationID,
				"strategy_id", s.ID,
				"amount0", out.Amount0.String(),
				"amount1", out.Amount1.String(),
				"error", rerr)
			return WithdrawResult{}, decimal.Zero, nil, vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.ExternalService, 25,
				"withdraw not recorded and position not restored", err, "strategy_id", sid, "compensated", "false")
		}
		return WithdrawResult{}, decimal.Zero, nil, vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.ExternalService, 24,
			"withdraw not recorded, position restored", err, "strategy_id", sid, "compensated", "true")
	}

	amount, other, otherAmount := splitByBase(p, s.BaseToken, out.Amount0, out.Amount1)
	var failure error
	if otherAmount.IsPositive() {
		swapped, err := o.swap(p, other, otherAmount)
		if err != nil {
			o.queuePayout(s, req.Account, other, otherAmount, payoutReasonUnswapped)
			failure = err
		} else {
			amount = amount.Add(swapped)
		}
	}

	var txID *uint64
	if amount.IsPositive() {
		id, err := o.transfer(req.Account, s.BaseToken, amount)
		if err != nil {
			o.queuePayout(s, req.Account, s.BaseToken, amount, payoutReasonWithdraw)
			failure = err
		} else {
			txID = &id
		}
	}

	if failure != nil {
		queued := "true"
		if err := e.persist(o.ctx, s); err != nil {
			slog.Error("queued withdraw payout not recorded",
				"correlation_id", o.correlationID,
				"strategy_id", s.ID,
				"account", req.Account,
				"error", err)
			queued = "false"
		}
		return WithdrawResult{}, decimal.Zero, nil, vaulterr.Response(failure).With("payout_queued", queued)
	}
	return WithdrawResult{CurrentShares: remaining, Amount: amount}, burn, txID, nil
}
