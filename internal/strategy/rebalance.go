package strategy

import (
	"context"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/dex"
	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// RebalanceResult reports where a strategy was before and after a rebalance.
type RebalanceResult struct {
	PreviousPool *pool.ID `json:"previousPool"`
	CurrentPool  *pool.ID `json:"currentPool"`
	Rebalanced   bool     `json:"isRebalanced"`
}

// Rebalance moves the strategy to the pool its ranker prefers. The move is a
// saga persisted after every step: withdraw everything from the current pool,
// consolidate into the base token, deposit into the target. A strategy left
// Unassigned by an earlier failure resumes from the consolidation step.
func (e *Engine) Rebalance(ctx context.Context, id ID, actor domain.Account) (RebalanceResult, error) {
	unlock, err := e.acquire(ctx, id)
	if err != nil {
		return RebalanceResult{}, err
	}
	defer unlock()

	o := e.begin(ctx, id, actor)
	s, err := e.load(o.ctx, id)
	if err != nil {
		if err := o.start(&event.RebalanceStarted{}); err != nil {
			return RebalanceResult{}, err
		}
		ve := vaulterr.Response(err)
		o.emit(&event.RebalanceFailed{Error: ve})
		return RebalanceResult{}, ve
	}
	prev := clonePtr(s.CurrentPool)
	if err := o.start(&event.RebalanceStarted{PreviousPool: prev}); err != nil {
		return RebalanceResult{}, err
	}

	res, err := e.rebalance(o, s)
	if err != nil {
		ve := vaulterr.Response(err)
		o.emit(&event.RebalanceFailed{PreviousPool: prev, SagaState: string(s.Saga.State), Error: ve})
		logFailure("rebalance failed", o, ve)
		return RebalanceResult{}, ve
	}
	res.PreviousPool = prev

	o.emit(&event.RebalanceCompleted{PreviousPool: prev, CurrentPool: res.CurrentPool, Rebalanced: res.Rebalanced})
	if res.Rebalanced {
		slog.Info("strategy rebalanced",
			"correlation_id", o.correlationID,
			"strategy_id", id,
			"from", lo.FromPtr(prev),
			"to", lo.FromPtr(res.CurrentPool))
	}
	return res, nil
}

func (e *Engine) rebalance(o *op, s *Strategy) (RebalanceResult, error) {
	if s.Saga.State == Unassigned && s.Saga.HasHeldFunds() {
		return e.resume(o, s, nil)
	}
	if s.CurrentPool == nil {
		return RebalanceResult{}, vaulterr.NewNotFound(vaulterr.ModuleStrategy, 30, "strategy has no current pool",
			"strategy_id", s.ID.String())
	}
	current, err := e.lookupPool(o.ctx, *s.CurrentPool)
	if err != nil {
		return RebalanceResult{}, err
	}

	d, candidates, err := e.rank(o, s, &current)
	if err != nil {
		return RebalanceResult{}, err
	}
	if !d.Move || d.Target == nil || *d.Target == current.ID {
		return RebalanceResult{CurrentPool: &current.ID}, nil
	}
	target := findPool(candidates, *d.Target)

	// Nothing invested: only the pointer moves.
	if s.TotalShares.IsZero() || s.PositionID == nil {
		s.CurrentPool = &target.ID
		s.PositionID = nil
		s.Saga = Saga{State: Stable}
		s.LastRebalanceAt = lo.ToPtr(e.now().UTC())
		if err := e.save(o.ctx, s); err != nil {
			return RebalanceResult{}, err
		}
		return RebalanceResult{CurrentPool: &target.ID, Rebalanced: true}, nil
	}

	s.Saga = Saga{State: WithdrawingOld, From: &current.ID, To: &target.ID, Reason: d.Reason}
	if err := e.save(o.ctx, s); err != nil {
		return RebalanceResult{}, err
	}

	out, err := o.withdrawLiquidity(current, *s.PositionID, dex.Full)
	if err != nil {
		s.Saga = Saga{State: Failed, From: &current.ID, To: &target.ID, Reason: err.Error()}
		if serr := e.save(o.ctx, s); serr != nil {
			slog.Error("saving failed saga", "strategy_id", s.ID, "error", serr)
		}
		return RebalanceResult{}, err
	}

	s.CurrentPool = nil
	s.PositionID = nil
	s.Saga = Saga{
		State: Unassigned,
		From:  &current.ID,
		To:    &target.ID,
		Held: map[string]decimal.Decimal{
			current.Token0: out.Amount0,
			current.Token1: out.Amount1,
		},
	}
	if err := e.save(o.ctx, s); err != nil {
		return RebalanceResult{}, err
	}
	return e.resume(o, s, &target)
}

// resume finishes a saga whose funds are held by the vault. target is nil
// when resuming a saga from an earlier run; the ranker then picks again.
func (e *Engine) resume(o *op, s *Strategy, target *pool.Pool) (RebalanceResult, error) {
	if err := e.consolidate(o, s); err != nil {
		return RebalanceResult{}, e.stayUnassigned(o, s, err)
	}

	if target == nil {
		d, candidates, err := e.rank(o, s, nil)
		if err != nil {
			return RebalanceResult{}, e.stayUnassigned(o, s, err)
		}
		if d.Target == nil {
			return RebalanceResult{}, e.stayUnassigned(o, s, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 31,
				"no eligible pool for strategy", "strategy_id", s.ID.String()))
		}
		t := findPool(candidates, *d.Target)
		target = &t
	}

	amount := s.Saga.Held[s.BaseToken]
	s.Saga.State = DepositingNew
	s.Saga.To = &target.ID
	s.Saga.Reason = ""
	if err := e.save(o.ctx, s); err != nil {
		return RebalanceResult{}, err
	}

	added, err := o.addLiquidity(*target, nil, s.BaseToken, amount)
	if err != nil {
		return RebalanceResult{}, e.stayUnassigned(o, s, err)
	}
	if err := e.pools.SetPosition(o.ctx, target.ID, added.PositionID); err != nil {
		slog.Warn("recording pool position failed", "pool_id", target.ID, "position_id", added.PositionID, "error", err)
	}

	now := e.now().UTC()
	s.CurrentPool = &target.ID
	s.PositionID = &added.PositionID
	s.TotalBalance = amount
	s.CurrentLiquidity = amount
	s.LiquidityUpdatedAt = &now
	s.LastRebalanceAt = &now
	s.Saga = Saga{State: Stable}
	if err := e.save(o.ctx, s); err != nil {
		slog.Error("rebalance not recorded after pool add",
			"correlation_id", o.correlationID,
			"strategy_id", s.ID,
			"pool_id", target.ID,
			"position_id", added.PositionID,
			"error", err)
		return RebalanceResult{}, err
	}
	return RebalanceResult{CurrentPool: &target.ID, Rebalanced: true}, nil
}

// consolidate swaps every held token other than the base token into it,
// saving after each swap.
func (e *Engine) consolidate(o *op, s *Strategy) error {
	tokens := lo.Keys(s.Saga.Held)
	slices.Sort(tokens)
	var from *pool.Pool
	for _, token := range tokens {
		amount := s.Saga.Held[token]
		if token == s.BaseToken || !amount.IsPositive() {
			continue
		}
		if from == nil {
			if s.Saga.From == nil {
				return vaulterr.NewNotFound(vaulterr.ModuleStrategy, 32, "held funds have no source pool",
					"strategy_id", s.ID.String(), "token", token)
			}
			p, err := e.lookupPool(o.ctx, *s.Saga.From)
			if err != nil {
				return err
			}
			from = &p
		}
		out, err := o.swap(*from, token, amount)
		if err != nil {
			return err
		}
		s.Saga.Held[s.BaseToken] = s.Saga.Held[s.BaseToken].Add(out)
		delete(s.Saga.Held, token)
		if err := e.save(o.ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// stayUnassigned records why held funds could not be placed.
func (e *Engine) stayUnassigned(o *op, s *Strategy, cause error) error {
	s.Saga.State = Unassigned
	s.Saga.Reason = cause.Error()
	if err := e.save(o.ctx, s); err != nil {
		slog.Error("saving unassigned saga", "strategy_id", s.ID, "error", err)
	}
	return cause
}
