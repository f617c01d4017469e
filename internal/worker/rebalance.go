package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/strategy"
)

// Actor recorded on events of worker-initiated rebalances.
const Actor domain.Account = "system:rebalance-worker"

// StrategyEngine is the part of the strategy engine the rebalance worker drives.
type StrategyEngine interface {
	Strategies(ctx context.Context) ([]strategy.View, error)
	RefreshLiquidity(ctx context.Context, id strategy.ID) (decimal.Decimal, error)
	SettlePayouts(ctx context.Context, id strategy.ID) (int, error)
	Rebalance(ctx context.Context, id strategy.ID, actor domain.Account) (strategy.RebalanceResult, error)
}

// RebalanceWorker periodically refreshes liquidity, settles queued payouts and
// rebalances every enabled strategy.
type RebalanceWorker struct {
	engine   StrategyEngine
	interval time.Duration
}

// NewRebalanceWorker creates a new RebalanceWorker.
func NewRebalanceWorker(engine StrategyEngine, interval time.Duration) *RebalanceWorker {
	return &RebalanceWorker{
		engine:   engine,
		interval: interval,
	}
}

// RunOnce processes every enabled strategy once. A failing strategy does not
// stop the others.
func (w *RebalanceWorker) RunOnce(ctx context.Context) {
	views, err := w.engine.Strategies(ctx)
	if err != nil {
		slog.Error("RebalanceWorker: listing strategies failed", "error", err)
		return
	}

	for _, v := range lo.Filter(views, func(v strategy.View, _ int) bool { return v.Enabled }) {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, v)
	}
}

func (w *RebalanceWorker) process(ctx context.Context, v strategy.View) {
	if v.PositionID != nil {
		if _, err := w.engine.RefreshLiquidity(ctx, v.ID); err != nil {
			slog.Warn("RebalanceWorker: liquidity refresh failed", "strategy_id", v.ID, "error", err)
		}
	}

	if len(v.PendingPayouts) > 0 {
		settled, err := w.engine.SettlePayouts(ctx, v.ID)
		if err != nil {
			slog.Warn("RebalanceWorker: settling payouts failed", "strategy_id", v.ID, "error", err)
		} else if settled > 0 {
			slog.Info("RebalanceWorker: payouts settled", "strategy_id", v.ID, "count", settled)
		}
	}

	if v.CurrentPool == nil && v.Saga.State != strategy.Unassigned {
		return
	}
	res, err := w.engine.Rebalance(ctx, v.ID, Actor)
	if err != nil {
		slog.Error("RebalanceWorker: rebalance failed", "strategy_id", v.ID, "error", err)
		return
	}
	if res.Rebalanced {
		slog.Info("RebalanceWorker: strategy moved", "strategy_id", v.ID, "from", res.PreviousPool, "to", res.CurrentPool)
	}
}

// Run starts the rebalance worker loop. It blocks until the context is cancelled.
func (w *RebalanceWorker) Run(ctx context.Context) {
	slog.Info("RebalanceWorker: starting")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RebalanceWorker: shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}
