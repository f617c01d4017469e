// Package snapshot stores a daily picture of every strategy.
package snapshot

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/strategy"
)

// Data is the stored picture of one strategy.
type Data struct {
	StrategyID         strategy.ID        `json:"strategyId"`
	Name               string             `json:"name"`
	BaseToken          string             `json:"baseToken"`
	TotalBalance       decimal.Decimal    `json:"totalBalance"`
	TotalShares        decimal.Decimal    `json:"totalShares"`
	CurrentLiquidity   decimal.Decimal    `json:"currentLiquidity"`
	LiquidityUpdatedAt *time.Time         `json:"currentLiquidityUpdatedAt,omitempty"`
	PositionID         *uint64            `json:"positionId,omitempty"`
	UsersCount         int                `json:"usersCount"`
	CurrentPool        *pool.ID           `json:"currentPool,omitempty"`
	SagaState          strategy.SagaState `json:"sagaState"`
	// SharePrice is TotalBalance / TotalShares, zero for an empty strategy.
	SharePrice decimal.Decimal `json:"sharePrice"`
	// APY is the annualised share-price growth over the yield period, in
	// percent. A loss is reported as the plain percentage change.
	APY float64 `json:"apy"`
}

const sharePricePrecision = 18

// YieldPeriod is the look-back of the APY figure.
const YieldPeriod = 7 * 24 * time.Hour

func newData(v strategy.View) Data {
	d := Data{
		StrategyID:         v.ID,
		Name:               v.Name,
		BaseToken:          v.BaseToken,
		TotalBalance:       v.TotalBalance,
		TotalShares:        v.TotalShares,
		CurrentLiquidity:   v.CurrentLiquidity,
		LiquidityUpdatedAt: v.LiquidityUpdatedAt,
		PositionID:         v.PositionID,
		UsersCount:         v.UsersCount,
		CurrentPool:        v.CurrentPool,
		SagaState:          v.Saga.State,
		SharePrice:         decimal.Zero,
	}
	if v.TotalShares.IsPositive() {
		d.SharePrice = v.TotalBalance.DivRound(v.TotalShares, sharePricePrecision)
	}
	return d
}

// Yield annualises the change from initial to final over period.
func Yield(initial, final decimal.Decimal, period time.Duration) float64 {
	days := period.Hours() / 24
	if !initial.IsPositive() || days <= 0 {
		return 0
	}
	growth := final.Div(initial).InexactFloat64()
	if growth >= 1 {
		return (math.Pow(growth, 365/days) - 1) * 100
	}
	return (growth - 1) * 100
}
