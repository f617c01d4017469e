package strategy

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/dex"
	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// DepositRequest asks to move Amount of Ledger from Account into a strategy.
type DepositRequest struct {
	StrategyID ID
	Account    domain.Account
	Ledger     string
	Amount     decimal.Decimal
}

// DepositResult reports what the deposit minted.
type DepositResult struct {
	Amount     decimal.Decimal `json:"amount"`
	Shares     decimal.Decimal `json:"shares"`
	TxID       uint64          `json:"txId"`
	PoolID     pool.ID         `json:"poolId"`
	PositionID uint64          `json:"positionId"`
}

const refundReasonDeposit = "deposit_refund"

// Deposit pulls funds from the caller, adds them to the strategy's pool and
// mints shares. Funds taken from the caller are returned, or queued for
// payout, if the pool interaction fails.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	unlock, err := e.acquire(ctx, req.StrategyID)
	if err != nil {
		return DepositResult{}, err
	}
	defer unlock()

	o := e.begin(ctx, req.StrategyID, req.Account)
	if err := o.start(&event.DepositStarted{Ledger: req.Ledger, Amount: req.Amount}); err != nil {
		return DepositResult{}, err
	}

	res, err := e.deposit(o, req)
	if err != nil {
		ve := vaulterr.Response(err)
		o.emit(&event.DepositFailed{Amount: req.Amount, Error: ve})
		logFailure("deposit failed", o, ve)
		return DepositResult{}, ve
	}

	o.emit(&event.DepositCompleted{
		Amount:     res.Amount,
		Shares:     res.Shares,
		PoolID:     res.PoolID,
		PositionID: res.PositionID,
		TxID:       res.TxID,
	})
	slog.Info("deposit completed",
		"correlation_id", o.correlationID,
		"strategy_id", req.StrategyID,
		"account", req.Account,
		"amount", req.Amount.String(),
		"shares", res.Shares.String(),
		"pool_id", res.PoolID)
	return res, nil
}

func (e *Engine) deposit(o *op, req DepositRequest) (DepositResult, error) {
	s, err := e.load(o.ctx, req.StrategyID)
	if err != nil {
		return DepositResult{}, err
	}
	sid := s.ID.String()

	if !req.Amount.IsPositive() || !domain.IsWhole(req.Amount) {
		return DepositResult{}, vaulterr.NewValidation(vaulterr.ModuleStrategy, 10, "amount must be a positive integer",
			"strategy_id", sid, "amount", req.Amount.String())
	}
	if req.Ledger != s.BaseToken {
		return DepositResult{}, vaulterr.NewValidation(vaulterr.ModuleStrategy, 11, "ledger does not match strategy base token",
			"strategy_id", sid, "ledger", req.Ledger, "base_token", s.BaseToken)
	}
	if !s.Enabled {
		return DepositResult{}, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 12, "strategy is disabled", "strategy_id", sid)
	}
	if s.Saga.State == Unassigned && s.Saga.HasHeldFunds() {
		return DepositResult{}, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 13, "strategy is between pools",
			"strategy_id", sid, "saga_state", string(s.Saga.State))
	}
	minted := SharesToMint(req.Amount, s.TotalShares, s.TotalBalance)
	if !minted.IsPositive() {
		return DepositResult{}, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 14, "deposit too small to mint shares",
			"strategy_id", sid, "amount", req.Amount.String())
	}

	target, err := e.depositPool(o, s)
	if err != nil {
		return DepositResult{}, err
	}

	txID, err := o.transferFrom(req.Account, s.BaseToken, req.Amount)
	if err != nil {
		return DepositResult{}, err
	}

	var positionID *uint64
	if s.CurrentPool != nil && *s.CurrentPool == target.ID {
		positionID = s.PositionID
	}
	added, err := o.addLiquidity(target, positionID, s.BaseToken, req.Amount)
	if err != nil {
		e.refund(o, s, req.Account, req.Amount)
		return DepositResult{}, err
	}

	if err := e.pools.SetPosition(o.ctx, target.ID, added.PositionID); err != nil {
		slog.Warn("recording pool position failed",
			"correlation_id", o.correlationID,
			"pool_id", target.ID,
			"position_id", added.PositionID,
			"error", err)
	}

	s.applyDeposit(req.Account, req.Amount, minted)
	s.CurrentPool = &target.ID
	s.PositionID = &added.PositionID
	s.Saga = Saga{State: Stable}
	if err := e.persist(o.ctx, s); err != nil {
		slog.Error("deposit not recorded after pool add, unwinding",
			"correlation_id", o.correlationID,
			"strategy_id", s.ID,
			"account", req.Account,
			"amount", req.Amount.String(),
			"shares", minted.String(),
			"position_id", added.PositionID,
			"error", err)
		return DepositResult{}, e.unwindDeposit(o, s, target, added.PositionID, req.Account, minted, err)
	}

	return DepositResult{
		Amount:     req.Amount,
		Shares:     minted,
		TxID:       txID,
		PoolID:     target.ID,
		PositionID: added.PositionID,
	}, nil
}

// depositPool returns the current pool, or the ranker's pick for a strategy
// that has none.
func (e *Engine) depositPool(o *op, s *Strategy) (pool.Pool, error) {
	if s.CurrentPool != nil {
		return e.lookupPool(o.ctx, *s.CurrentPool)
	}
	d, candidates, err := e.rank(o, s, nil)
	if err != nil {
		return pool.Pool{}, err
	}
	if d.Target == nil {
		return pool.Pool{}, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 16, "no eligible pool for strategy",
			"strategy_id", s.ID.String())
	}
	return findPool(candidates, *d.Target), nil
}

// unwindDeposit takes a deposit that reached the pool but could not be
// recorded back out and pays it to the caller. s carries the deposit's
// effects in memory only; nothing is saved.
func (e *Engine) unwindDeposit(o *op, s *Strategy, p pool.Pool, positionID uint64, to domain.Account, minted decimal.Decimal, cause error) error {
	sid := s.ID.String()
	out, err := o.withdrawLiquidity(p, positionID, dex.Fraction{Shares: minted, TotalShares: s.TotalShares})
	if err != nil {
		slog.Error("deposit left in pool unrecorded",
			"correlation_id", o.correlationID,
			"strategy_id", s.ID,
			"account", to,
			"position_id", positionID,
			"error", err)
		return vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.ExternalService, 15, "deposit not recorded and not returned", cause,
			"strategy_id", sid, "compensated", "false")
	}

	amount, other, otherAmount := splitByBase(p, s.BaseToken, out.Amount0, out.Amount1)
	compensated := "true"
	if otherAmount.IsPositive() {
		swapped, err := o.swap(p, other, otherAmount)
		if err != nil {
			slog.Error("unwound deposit held in vault",
				"correlation_id", o.correlationID,
				"strategy_id", s.ID,
				"account", to,
				"token", other,
				"amount", otherAmount.String(),
				"error", err)
			compensated = "partial"
		} else {
			amount = amount.Add(swapped)
		}
	}
	if amount.IsPositive() {
		if _, err := o.payout(to, s.BaseToken, amount, refundReasonDeposit, false); err != nil {
			slog.Error("unwound deposit held in vault",
				"correlation_id", o.correlationID,
				"strategy_id", s.ID,
				"account", to,
				"token", s.BaseToken,
				"amount", amount.String(),
				"error", err)
			return vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.ExternalService, 18, "deposit not recorded and refund failed", cause,
				"strategy_id", sid, "compensated", "false", "held", amount.String())
		}
	}
	return vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.BusinessLogic, 17, "deposit not recorded, funds returned", cause,
		"strategy_id", sid, "compensated", compensated, "refunded", amount.String())
}

// refund returns a deposit whose pool interaction failed. s must not carry
// the deposit's effects.
func (e *Engine) refund(o *op, s *Strategy, to domain.Account, amount decimal.Decimal) {
	if _, err := o.payout(to, s.BaseToken, amount, refundReasonDeposit, true); err == nil {
		return
	}
	o.queuePayout(s, to, s.BaseToken, amount, refundReasonDeposit)
	if err := e.persist(o.ctx, s); err != nil {
		slog.Error("saving queued refund failed",
			"correlation_id", o.correlationID,
			"strategy_id", s.ID,
			"account", to,
			"amount", amount.String(),
			"error", err)
	}
}
