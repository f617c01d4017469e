package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// View is the public shape of a strategy.
type View struct {
	ID                 ID                                 `json:"id"`
	Name               string                             `json:"name"`
	Description        string                             `json:"description"`
	BaseToken          string                             `json:"baseToken"`
	Profile            string                             `json:"profile"`
	Pools              []pool.ID                          `json:"pools"`
	CurrentPool        *pool.ID                           `json:"currentPool"`
	PositionID         *uint64                            `json:"positionId,omitempty"`
	TotalShares        decimal.Decimal                    `json:"totalShares"`
	TotalBalance       decimal.Decimal                    `json:"totalBalance"`
	UserShares         map[domain.Account]decimal.Decimal `json:"userShares"`
	InitialDeposit     map[domain.Account]decimal.Decimal `json:"initialDeposit"`
	UsersCount         int                                `json:"usersCount"`
	CurrentLiquidity   decimal.Decimal                    `json:"currentLiquidity"`
	LiquidityUpdatedAt *time.Time                         `json:"currentLiquidityUpdatedAt"`
	Enabled            bool                               `json:"enabled"`
	Saga               Saga                               `json:"saga"`
	LastRebalanceAt    *time.Time                         `json:"lastRebalanceAt,omitempty"`
	PendingPayouts     []Payout                           `json:"pendingPayouts,omitempty"`
}

// UserPosition is one account's stake in a strategy.
type UserPosition struct {
	StrategyID     ID              `json:"strategyId"`
	StrategyName   string          `json:"strategyName"`
	CurrentPool    *pool.ID        `json:"strategyCurrentPool"`
	TotalShares    decimal.Decimal `json:"totalShares"`
	UserShares     decimal.Decimal `json:"userShares"`
	InitialDeposit decimal.Decimal `json:"initialDeposit"`
	UsersCount     int             `json:"usersCount"`
}

func newView(s *Strategy) View {
	return View{
		ID:                 s.ID,
		Name:               s.Name,
		Description:        s.Description,
		BaseToken:          s.BaseToken,
		Profile:            s.Profile,
		Pools:              s.Pools,
		CurrentPool:        s.CurrentPool,
		PositionID:         s.PositionID,
		TotalShares:        s.TotalShares,
		TotalBalance:       s.TotalBalance,
		UserShares:         s.UserShares,
		InitialDeposit:     s.InitialDeposit,
		UsersCount:         s.UsersCount(),
		CurrentLiquidity:   s.CurrentLiquidity,
		LiquidityUpdatedAt: s.LiquidityUpdatedAt,
		Enabled:            s.Enabled,
		Saga:               s.Saga,
		LastRebalanceAt:    s.LastRebalanceAt,
		PendingPayouts:     s.PendingPayouts,
	}
}

// Strategies returns every strategy ordered by id.
func (e *Engine) Strategies(ctx context.Context) ([]View, error) {
	all, err := e.repo.List(ctx)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 40, "listing strategies", err)
	}
	out := make([]View, 0, len(all))
	for _, s := range all {
		out = append(out, newView(s))
	}
	return out, nil
}

// Strategy returns one strategy.
func (e *Engine) Strategy(ctx context.Context, id ID) (View, error) {
	s, err := e.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return newView(s), nil
}

// UserStrategies returns the strategies in which account holds shares.
func (e *Engine) UserStrategies(ctx context.Context, account domain.Account) ([]UserPosition, error) {
	all, err := e.repo.List(ctx)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 41, "listing strategies", err)
	}
	out := make([]UserPosition, 0)
	for _, s := range all {
		shares := s.SharesOf(account)
		if shares.IsZero() {
			continue
		}
		out = append(out, UserPosition{
			StrategyID:     s.ID,
			StrategyName:   s.Name,
			CurrentPool:    s.CurrentPool,
			TotalShares:    s.TotalShares,
			UserShares:     shares,
			InitialDeposit: s.InitialDeposit[account],
			UsersCount:     s.UsersCount(),
		})
	}
	return out, nil
}

// PoolInUse reports whether any strategy sits in the pool or has a saga
// step referring to it.
func (e *Engine) PoolInUse(ctx context.Context, id pool.ID) (bool, error) {
	all, err := e.repo.List(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range all {
		if s.CurrentPool != nil && *s.CurrentPool == id {
			return true, nil
		}
		if s.Saga.State == Stable {
			continue
		}
		if (s.Saga.From != nil && *s.Saga.From == id) || (s.Saga.To != nil && *s.Saga.To == id) {
			return true, nil
		}
	}
	return false, nil
}
