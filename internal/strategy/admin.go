package strategy

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// Reset clears all balances and the pool assignment of a strategy. It exists
// for test environments and touches neither the ledger nor any pool.
func (e *Engine) Reset(ctx context.Context, id ID) error {
	unlock, err := e.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	s.resetState()
	if err := e.save(ctx, s); err != nil {
		return err
	}
	slog.Warn("strategy reset", "strategy_id", id)
	return nil
}

// SetEnabled opens or closes a strategy for deposits.
func (e *Engine) SetEnabled(ctx context.Context, id ID, enabled bool) error {
	unlock, err := e.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if s.Enabled == enabled {
		return nil
	}
	s.Enabled = enabled
	if err := e.save(ctx, s); err != nil {
		return err
	}
	slog.Info("strategy availability changed", "strategy_id", id, "enabled", enabled)
	return nil
}

// RefreshLiquidity revalues the strategy's position in the base token and
// stores it as the current balance. Strategies without a position are left
// untouched.
func (e *Engine) RefreshLiquidity(ctx context.Context, id ID) (decimal.Decimal, error) {
	unlock, err := e.acquire(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	o := e.begin(ctx, id, "")
	s, err := e.load(o.ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if s.CurrentPool == nil || s.PositionID == nil || s.TotalShares.IsZero() {
		return s.CurrentLiquidity, nil
	}
	p, err := e.lookupPool(o.ctx, *s.CurrentPool)
	if err != nil {
		return decimal.Zero, err
	}

	var value decimal.Decimal
	err = o.call(func(ctx context.Context) error {
		var err error
		value, err = e.dex.PositionValue(ctx, p, *s.PositionID, s.BaseToken)
		return err
	})
	if err != nil {
		return decimal.Zero, vaulterr.FromAdapter(vaulterr.ModuleDEX, 14, "position value", err, "pool_id", p.ID.String())
	}

	now := e.now().UTC()
	s.TotalBalance = value
	s.CurrentLiquidity = value
	s.LiquidityUpdatedAt = &now
	if err := e.save(o.ctx, s); err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

// SettlePayouts retries queued payouts of a strategy and returns how many
// went through. Payouts that fail again stay queued. Each payout is marked
// as settling before its transfer so that a save lost after the transfer
// cannot lead to paying it twice.
func (e *Engine) SettlePayouts(ctx context.Context, id ID) (int, error) {
	unlock, err := e.acquire(ctx, id)
	if err != nil {
		return 0, err
	}
	defer unlock()

	s, err := e.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(s.PendingPayouts) == 0 {
		return 0, nil
	}

	saveCtx := context.WithoutCancel(ctx)
	settled := 0
	for i := 0; i < len(s.PendingPayouts); {
		p := s.PendingPayouts[i]
		if p.Settling {
			slog.Warn("payout from an interrupted settlement needs review",
				"strategy_id", id,
				"account", p.Account,
				"token", p.Token,
				"amount", p.Amount.String())
			i++
			continue
		}

		s.PendingPayouts[i].Settling = true
		if err := e.persist(saveCtx, s); err != nil {
			return settled, err
		}
		o := e.begin(ctx, id, p.Account)
		if _, err := o.payout(p.Account, p.Token, p.Amount, p.Reason, true); err != nil {
			s.PendingPayouts[i].Settling = false
			if err := e.persist(saveCtx, s); err != nil {
				return settled, err
			}
			i++
			continue
		}

		s.PendingPayouts = slices.Delete(s.PendingPayouts, i, i+1)
		settled++
		if err := e.persist(saveCtx, s); err != nil {
			slog.Error("settled payout not recorded",
				"strategy_id", id,
				"account", p.Account,
				"amount", p.Amount.String(),
				"error", err)
			return settled, err
		}
	}
	if settled > 0 {
		slog.Info("payouts settled", "strategy_id", id, "settled", settled, "remaining", len(s.PendingPayouts))
	}
	return settled, nil
}

// PendingPayouts returns the queued payouts owed to account across strategies.
func (e *Engine) PendingPayouts(ctx context.Context, account domain.Account) ([]Payout, error) {
	all, err := e.repo.List(ctx)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 42, "listing strategies", err)
	}
	out := make([]Payout, 0)
	for _, s := range all {
		for _, p := range s.PendingPayouts {
			if p.Account == account {
				out = append(out, p)
			}
		}
	}
	return out, nil
}
