package poolstats

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/remote"
)

// Client fetches current pool metrics from the pool-stats registry.
type Client struct {
	remote *remote.Client
}

// NewClient creates a new pool-stats client.
func NewClient(rc *remote.Client) *Client {
	return &Client{remote: rc}
}

type metricsRequest struct {
	PoolIDs []pool.ID `json:"poolIds"`
}

type metricsResponse struct {
	APY           APY             `json:"apy"`
	TVL           decimal.Decimal `json:"tvl"`
	Volume        decimal.Decimal `json:"volume"`
	TokenPriceUSD float64         `json:"tokenPriceUsd"`
}

// FetchMetrics returns the latest metrics for the given pools. Pools unknown to
// the registry are absent from the result.
func (c *Client) FetchMetrics(ctx context.Context, ids []pool.ID) (map[pool.ID]Sample, error) {
	// Response: {"KongSwap_ckBTC_ICP":{"apy":{"usdApy":12.5,"tokensApy":3.1},"tvl":"1000000"},...}
	var raw map[pool.ID]metricsResponse
	if err := c.remote.PostJSON(ctx, "/v1/pool_metrics", metricsRequest{PoolIDs: ids}, &raw); err != nil {
		return nil, fmt.Errorf("fetching pool metrics: %w", err)
	}

	result := make(map[pool.ID]Sample, len(raw))
	for id, m := range raw {
		result[id] = Sample{
			PoolID:        id,
			TVL:           m.TVL,
			Volume:        m.Volume,
			APY:           m.APY,
			TokenPriceUSD: m.TokenPriceUSD,
		}
	}
	return result, nil
}
