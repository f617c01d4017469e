// Package dex adapts liquidity providers behind one interface.
package dex

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// AddResult is what a provider reports after adding liquidity.
type AddResult struct {
	Amount0Used decimal.Decimal `json:"amount0Used"`
	Amount1Used decimal.Decimal `json:"amount1Used"`
	PositionID  uint64          `json:"positionId"`
}

// WithdrawResult holds the token amounts a provider paid out.
type WithdrawResult struct {
	Amount0 decimal.Decimal `json:"amount0"`
	Amount1 decimal.Decimal `json:"amount1"`
}

// Fraction is the share of a position to withdraw, Shares/TotalShares.
type Fraction struct {
	Shares      decimal.Decimal `json:"shares"`
	TotalShares decimal.Decimal `json:"totalShares"`
}

// Full is the whole position.
var Full = Fraction{Shares: decimal.NewFromInt(1), TotalShares: decimal.NewFromInt(1)}

// Of applies the fraction to amount, rounding down.
func (f Fraction) Of(amount decimal.Decimal) decimal.Decimal {
	return domain.MulDivFloor(amount, f.Shares, f.TotalShares)
}

// IsFull reports whether the fraction covers the whole position.
func (f Fraction) IsFull() bool {
	return !f.TotalShares.IsZero() && f.Shares.Equal(f.TotalShares)
}

// Adapter is the contract every provider integration fulfils. A nil positionID
// on AddLiquidity opens a new position.
type Adapter interface {
	AddLiquidity(ctx context.Context, p pool.Pool, positionID *uint64, amount0, amount1 decimal.Decimal) (AddResult, error)
	WithdrawLiquidity(ctx context.Context, p pool.Pool, positionID uint64, f Fraction) (WithdrawResult, error)
	Swap(ctx context.Context, p pool.Pool, tokenIn string, amountIn decimal.Decimal) (decimal.Decimal, error)
	PositionValue(ctx context.Context, p pool.Pool, positionID uint64, token string) (decimal.Decimal, error)
}

// Router dispatches to the adapter registered for a pool's provider.
type Router struct {
	adapters map[pool.Provider]Adapter
}

// NewRouter creates a router over the given adapters.
func NewRouter(adapters map[pool.Provider]Adapter) *Router {
	return &Router{adapters: adapters}
}

func (r *Router) adapter(p pool.Pool) (Adapter, error) {
	a, ok := r.adapters[p.Provider]
	if !ok {
		return nil, vaulterr.NewBusinessLogic(vaulterr.ModuleDEX, 1, "no adapter for provider",
			"provider", string(p.Provider), "pool_id", p.ID.String())
	}
	return a, nil
}

func (r *Router) AddLiquidity(ctx context.Context, p pool.Pool, positionID *uint64, amount0, amount1 decimal.Decimal) (AddResult, error) {
	a, err := r.adapter(p)
	if err != nil {
		return AddResult{}, err
	}
	return a.AddLiquidity(ctx, p, positionID, amount0, amount1)
}

func (r *Router) WithdrawLiquidity(ctx context.Context, p pool.Pool, positionID uint64, f Fraction) (WithdrawResult, error) {
	a, err := r.adapter(p)
	if err != nil {
		return WithdrawResult{}, err
	}
	return a.WithdrawLiquidity(ctx, p, positionID, f)
}

func (r *Router) Swap(ctx context.Context, p pool.Pool, tokenIn string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	a, err := r.adapter(p)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Swap(ctx, p, tokenIn, amountIn)
}

func (r *Router) PositionValue(ctx context.Context, p pool.Pool, positionID uint64, token string) (decimal.Decimal, error) {
	a, err := r.adapter(p)
	if err != nil {
		return decimal.Zero, err
	}
	return a.PositionValue(ctx, p, positionID, token)
}

// OtherToken returns the pool token that is not token.
func OtherToken(p pool.Pool, token string) (string, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	}
	return "", fmt.Errorf("token %s is not traded in pool %s", token, p.ID)
}
