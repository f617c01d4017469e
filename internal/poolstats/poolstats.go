// Package poolstats collects pool yield and liquidity metrics from the
// pool-stats registry and keeps a history for the rebalance policy.
package poolstats

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/pool"
)

// APY is the annualised yield of a pool, in percent.
type APY struct {
	USD    float64 `json:"usdApy"`
	Tokens float64 `json:"tokensApy"`
}

// Sample is one observation of a pool.
type Sample struct {
	PoolID        pool.ID         `json:"poolId"`
	TVL           decimal.Decimal `json:"tvl"`
	Volume        decimal.Decimal `json:"volume"`
	APY           APY             `json:"apy"`
	TokenPriceUSD float64         `json:"tokenPriceUsd"`
	ObservedAt    time.Time       `json:"observedAt"`
}

// Series summarises a pool's samples over a window, oldest first.
type Series struct {
	PoolID        pool.ID
	TVL           decimal.Decimal
	Volume        decimal.Decimal
	USDAPY        []float64
	TokenAPY      []float64
	TokenPriceUSD []float64
	// LongTermUSDAPY is the mean USD APY over the whole window.
	LongTermUSDAPY float64
	UpdatedAt      time.Time
}

// Summarize builds a series from samples of one pool. TVL and volume come from
// the newest sample.
func Summarize(id pool.ID, samples []Sample) Series {
	s := Series{PoolID: id}
	if len(samples) == 0 {
		return s
	}
	s.USDAPY = make([]float64, 0, len(samples))
	s.TokenAPY = make([]float64, 0, len(samples))
	sum := 0.0
	for _, x := range samples {
		s.USDAPY = append(s.USDAPY, x.APY.USD)
		s.TokenAPY = append(s.TokenAPY, x.APY.Tokens)
		if x.TokenPriceUSD > 0 {
			s.TokenPriceUSD = append(s.TokenPriceUSD, x.TokenPriceUSD)
		}
		sum += x.APY.USD
	}
	last := samples[len(samples)-1]
	s.TVL = last.TVL
	s.Volume = last.Volume
	s.UpdatedAt = last.ObservedAt
	s.LongTermUSDAPY = sum / float64(len(samples))
	return s
}
