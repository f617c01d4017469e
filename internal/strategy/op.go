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

// op carries what every event of one operation shares. Its context is
// detached from the caller so that a disconnect cannot stop an operation
// halfway through a pool interaction.
type op struct {
	e             *Engine
	ctx           context.Context
	correlationID string
	actor         domain.Account
	strategyID    ID
}

func (e *Engine) begin(ctx context.Context, id ID, actor domain.Account) *op {
	return &op{
		e:             e,
		ctx:           context.WithoutCancel(ctx),
		correlationID: event.NewCorrelationID(),
		actor:         actor,
		strategyID:    id,
	}
}

func (o *op) emit(p event.Payload) error {
	sid := uint16(o.strategyID)
	_, err := o.e.events.Append(o.ctx, event.Entry{
		CorrelationID: o.correlationID,
		Actor:         o.actor.String(),
		StrategyID:    &sid,
		Payload:       p,
	})
	if err != nil {
		slog.Error("appending event failed",
			"kind", p.Kind(),
			"correlation_id", o.correlationID,
			"strategy_id", o.strategyID,
			"error", err)
	}
	return err
}

// start records the opening event. An operation that cannot be audited does
// not run.
func (o *op) start(p event.Payload) error {
	if err := o.emit(p); err != nil {
		return vaulterr.Wrap(vaulterr.ModuleEvent, vaulterr.Unknown, 1, "event log unavailable", err)
	}
	return nil
}

// step records the opening event of a sub-step. The collaborator is not
// called when the event cannot be appended.
func (o *op) step(p event.Payload) error {
	if err := o.emit(p); err != nil {
		return vaulterr.Wrap(vaulterr.ModuleEvent, vaulterr.Unknown, 2, "event log unavailable", err, "kind", string(p.Kind()))
	}
	return nil
}

// call runs fn with the adapter timeout applied.
func (o *op) call(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(o.ctx, o.e.adapterTimeout)
	defer cancel()
	return fn(ctx)
}

// addLiquidity puts a single-sided amount of token into p.
func (o *op) addLiquidity(p pool.Pool, positionID *uint64, token string, amount decimal.Decimal) (dex.AddResult, error) {
	amount0, amount1 := amount, decimal.Zero
	if p.Token0 != token {
		amount0, amount1 = decimal.Zero, amount
	}
	return o.addPair(p, positionID, amount0, amount1)
}

// addPair puts both pool tokens into p.
func (o *op) addPair(p pool.Pool, positionID *uint64, amount0, amount1 decimal.Decimal) (dex.AddResult, error) {
	if err := o.step(&event.AddLiquidityStarted{PoolID: p.ID, Amount0: amount0, Amount1: amount1}); err != nil {
		return dex.AddResult{}, err
	}

	var res dex.AddResult
	err := o.call(func(ctx context.Context) error {
		var err error
		res, err = o.e.dex.AddLiquidity(ctx, p, positionID, amount0, amount1)
		return err
	})
	if err != nil {
		ve := vaulterr.FromAdapter(vaulterr.ModuleDEX, 10, "add liquidity", err, "pool_id", p.ID.String())
		o.emit(&event.AddLiquidityFailed{PoolID: p.ID, Error: ve})
		return dex.AddResult{}, ve
	}
	o.emit(&event.AddLiquidityCompleted{
		PoolID:      p.ID,
		Amount0Used: res.Amount0Used,
		Amount1Used: res.Amount1Used,
		PositionID:  res.PositionID,
	})
	return res, nil
}

func (o *op) withdrawLiquidity(p pool.Pool, positionID uint64, f dex.Fraction) (dex.WithdrawResult, error) {
	if err := o.step(&event.WithdrawLiquidityStarted{
		PoolID:      p.ID,
		PositionID:  positionID,
		Shares:      f.Shares,
		TotalShares: f.TotalShares,
	}); err != nil {
		return dex.WithdrawResult{}, err
	}

	var res dex.WithdrawResult
	err := o.call(func(ctx context.Context) error {
		var err error
		res, err = o.e.dex.WithdrawLiquidity(ctx, p, positionID, f)
		return err
	})
	if err != nil {
		ve := vaulterr.FromAdapter(vaulterr.ModuleDEX, 11, "withdraw liquidity", err, "pool_id", p.ID.String())
		o.emit(&event.WithdrawLiquidityFailed{PoolID: p.ID, Error: ve})
		return dex.WithdrawResult{}, ve
	}
	o.emit(&event.WithdrawLiquidityCompleted{PoolID: p.ID, Amount0: res.Amount0, Amount1: res.Amount1})
	return res, nil
}

func (o *op) swap(p pool.Pool, tokenIn string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	tokenOut, err := dex.OtherToken(p, tokenIn)
	if err != nil {
		return decimal.Zero, vaulterr.Wrap(vaulterr.ModuleDEX, vaulterr.BusinessLogic, 13, "swap", err, "pool_id", p.ID.String())
	}
	if err := o.step(&event.SwapStarted{PoolID: p.ID, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn}); err != nil {
		return decimal.Zero, err
	}

	var out decimal.Decimal
	err = o.call(func(ctx context.Context) error {
		var err error
		out, err = o.e.dex.Swap(ctx, p, tokenIn, amountIn)
		return err
	})
	if err != nil {
		ve := vaulterr.FromAdapter(vaulterr.ModuleDEX, 12, "swap", err, "pool_id", p.ID.String(), "token_in", tokenIn)
		o.emit(&event.SwapFailed{PoolID: p.ID, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn, Error: ve})
		return decimal.Zero, ve
	}
	o.emit(&event.SwapCompleted{PoolID: p.ID, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn, AmountOut: out})
	return out, nil
}

func (o *op) transferFrom(owner domain.Account, token string, amount decimal.Decimal) (uint64, error) {
	var txID uint64
	err := o.call(func(ctx context.Context) error {
		var err error
		txID, err = o.e.ledger.TransferFrom(ctx, owner, token, amount)
		return err
	})
	if err != nil {
		return 0, vaulterr.FromAdapter(vaulterr.ModuleLedger, 10, "transfer from user", err, "account", owner.String())
	}
	return txID, nil
}

func (o *op) transfer(to domain.Account, token string, amount decimal.Decimal) (uint64, error) {
	var txID uint64
	err := o.call(func(ctx context.Context) error {
		var err error
		txID, err = o.e.ledger.Transfer(ctx, to, token, amount)
		return err
	})
	if err != nil {
		return 0, vaulterr.FromAdapter(vaulterr.ModuleLedger, 11, "transfer to user", err, "account", to.String())
	}
	return txID, nil
}

// payout transfers an owed amount to a user outside the withdraw path. When
// queue is true a failed transfer is reported as queued for settlement.
func (o *op) payout(to domain.Account, token string, amount decimal.Decimal, reason string, queue bool) (uint64, error) {
	if err := o.step(&event.PayoutStarted{Token: token, Amount: amount, Reason: reason}); err != nil {
		return 0, err
	}
	txID, err := o.transfer(to, token, amount)
	if err != nil {
		o.emit(&event.PayoutFailed{Token: token, Amount: amount, Queued: queue, Error: vaulterr.Response(err)})
		return 0, err
	}
	o.emit(&event.PayoutCompleted{Token: token, Amount: amount, TxID: txID})
	return txID, nil
}

func (o *op) queuePayout(s *Strategy, to domain.Account, token string, amount decimal.Decimal, reason string) {
	s.PendingPayouts = append(s.PendingPayouts, Payout{
		Account:   to,
		Token:     token,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: o.e.now().UTC(),
	})
	slog.Warn("payout queued",
		"correlation_id", o.correlationID,
		"strategy_id", s.ID,
		"account", to,
		"token", token,
		"amount", amount.String(),
		"reason", reason)
}
