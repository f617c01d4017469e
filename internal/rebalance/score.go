package rebalance

import (
	"math"

	"github.com/mtlprog/vault/internal/poolstats"
)

// Components are the inputs of a pool score.
type Components struct {
	SMAUSDAPY       float64
	SMATokenAPY     float64
	LogTVL          float64
	CapitalEff      float64
	APYVolatility   float64
	RebalanceCost   float64
	PriceVolatility float64
	LongTermUSDAPY  float64
}

// ComputeComponents derives score inputs from a pool series. positionValue and
// the returned cost share one unit.
func ComputeComponents(s poolstats.Series, positionValue float64, params Params) Components {
	tvl := s.TVL.InexactFloat64()
	logTVL, capEff := 0.0, 0.0
	if tvl > 0 {
		logTVL = math.Log10(tvl)
		capEff = s.Volume.InexactFloat64() / tvl
	}
	return Components{
		SMAUSDAPY:       mean(s.USDAPY),
		SMATokenAPY:     mean(s.TokenAPY),
		LogTVL:          logTVL,
		CapitalEff:      capEff,
		APYVolatility:   stddev(s.USDAPY),
		RebalanceCost:   RebalanceCost(positionValue, params.DexFeeBps, params.GasCost),
		PriceVolatility: stddev(s.TokenPriceUSD),
		LongTermUSDAPY:  s.LongTermUSDAPY,
	}
}

// Score weighs the components.
func Score(c Components, w Weights) float64 {
	return w.USDAPY*c.SMAUSDAPY +
		w.TokenAPY*c.SMATokenAPY +
		w.LogTVL*c.LogTVL +
		w.CapitalEff*c.CapitalEff -
		w.APYVolatility*c.APYVolatility -
		w.RebalanceCost*c.RebalanceCost -
		w.PriceVolatility*c.PriceVolatility
}

// RebalanceCost is the swap fee on the position plus gas.
func RebalanceCost(positionValue float64, feeBps int64, gas float64) float64 {
	return float64(feeBps)/10_000*positionValue + gas
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) <= 1 {
		return 0
	}
	m := mean(xs)
	v := 0.0
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)))
}
