package dex

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/remote"
)

// Client is an Adapter backed by a provider gateway speaking JSON over HTTP.
type Client struct {
	remote *remote.Client
}

// NewClient creates a provider client.
func NewClient(rc *remote.Client) *Client {
	return &Client{remote: rc}
}

type poolRef struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}

func ref(p pool.Pool) poolRef { return poolRef{Token0: p.Token0, Token1: p.Token1} }

func (c *Client) AddLiquidity(ctx context.Context, p pool.Pool, positionID *uint64, amount0, amount1 decimal.Decimal) (AddResult, error) {
	req := struct {
		Pool       poolRef         `json:"pool"`
		PositionID *uint64         `json:"positionId,omitempty"`
		Amount0    decimal.Decimal `json:"amount0"`
		Amount1    decimal.Decimal `json:"amount1"`
	}{ref(p), positionID, amount0, amount1}

	var resp AddResult
	if err := c.remote.PostJSON(ctx, "/v1/liquidity/add", req, &resp); err != nil {
		return AddResult{}, fmt.Errorf("adding liquidity to %s: %w", p.ID, err)
	}
	return resp, nil
}

func (c *Client) WithdrawLiquidity(ctx context.Context, p pool.Pool, positionID uint64, f Fraction) (WithdrawResult, error) {
	req := struct {
		Pool       poolRef  `json:"pool"`
		PositionID uint64   `json:"positionId"`
		Fraction   Fraction `json:"fraction"`
	}{ref(p), positionID, f}

	var resp WithdrawResult
	if err := c.remote.PostJSON(ctx, "/v1/liquidity/withdraw", req, &resp); err != nil {
		return WithdrawResult{}, fmt.Errorf("withdrawing liquidity from %s: %w", p.ID, err)
	}
	return resp, nil
}

func (c *Client) Swap(ctx context.Context, p pool.Pool, tokenIn string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	req := struct {
		Pool     poolRef         `json:"pool"`
		TokenIn  string          `json:"tokenIn"`
		AmountIn decimal.Decimal `json:"amountIn"`
	}{ref(p), tokenIn, amountIn}

	var resp struct {
		AmountOut decimal.Decimal `json:"amountOut"`
	}
	if err := c.remote.PostJSON(ctx, "/v1/swap", req, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("swapping %s in %s: %w", tokenIn, p.ID, err)
	}
	return resp.AmountOut, nil
}

func (c *Client) PositionValue(ctx context.Context, p pool.Pool, positionID uint64, token string) (decimal.Decimal, error) {
	q := url.Values{
		"token0":     {p.Token0},
		"token1":     {p.Token1},
		"positionId": {fmt.Sprint(positionID)},
		"in":         {token},
	}
	var resp struct {
		Value decimal.Decimal `json:"value"`
	}
	if err := c.remote.GetJSON(ctx, "/v1/positions/value?"+q.Encode(), &resp); err != nil {
		return decimal.Zero, fmt.Errorf("valuing position %d in %s: %w", positionID, p.ID, err)
	}
	return resp.Value, nil
}
