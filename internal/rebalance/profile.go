// Package rebalance scores pools from their metrics and decides when a
// strategy should move.
package rebalance

import (
	"fmt"
	"time"
)

// Profile selects a risk appetite.
type Profile string

const (
	Conservative     Profile = "Conservative"
	Balanced         Profile = "Balanced"
	Aggressive       Profile = "Aggressive"
	TokenAccumulator Profile = "TokenAccumulator"
	IncentiveFarmer  Profile = "IncentiveFarmer"
	StableOnly       Profile = "StableOnly"
)

// Profiles lists every profile.
var Profiles = []Profile{Conservative, Balanced, Aggressive, TokenAccumulator, IncentiveFarmer, StableOnly}

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	for _, p := range Profiles {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown rebalance profile %q", s)
}

// Weights of the score terms. Terms 5 to 7 are penalties.
type Weights struct {
	USDAPY          float64
	TokenAPY        float64
	LogTVL          float64
	CapitalEff      float64
	APYVolatility   float64
	RebalanceCost   float64
	PriceVolatility float64
}

// Params tune a decision.
type Params struct {
	Cooldown           time.Duration
	ScoreThreshold     float64
	GainCostMultiplier float64
	Weights            Weights
	DexFeeBps          int64
	GasCost            float64
	LongTermAPYMin     float64
	SMAWindow          time.Duration
}

// ParamsFor returns the tuning of a profile.
func ParamsFor(p Profile) Params {
	params := Params{
		DexFeeBps: 60,
		SMAWindow: 72 * time.Hour,
	}
	switch p {
	case Conservative:
		params.Cooldown = 72 * time.Hour
		params.ScoreThreshold = 8
		params.GainCostMultiplier = 3
		params.Weights = Weights{1.0, 0.2, 0.01, 0.3, 2.0, 1.5, 2.0}
	case Aggressive:
		params.Cooldown = 8 * time.Hour
		params.ScoreThreshold = 2
		params.GainCostMultiplier = 1.2
		params.Weights = Weights{1.0, 0.6, 0.0, 1.0, 0.2, 0.3, 0.1}
	case TokenAccumulator:
		params.Cooldown = 36 * time.Hour
		params.ScoreThreshold = 3
		params.GainCostMultiplier = 1.5
		params.Weights = Weights{0.3, 1.0, 0.01, 0.4, 0.5, 0.8, 0.3}
	case IncentiveFarmer:
		params.Cooldown = 18 * time.Hour
		params.ScoreThreshold = 4
		params.GainCostMultiplier = 1.8
		params.Weights = Weights{0.8, 0.7, 0.01, 0.7, 0.6, 0.7, 0.4}
	case StableOnly:
		params.Cooldown = 60 * time.Hour
		params.ScoreThreshold = 6
		params.GainCostMultiplier = 2.5
		params.Weights = Weights{1.0, 0.3, 0.05, 0.2, 2.5, 1.2, 2.0}
	default: // Balanced
		params.Cooldown = 36 * time.Hour
		params.ScoreThreshold = 5
		params.GainCostMultiplier = 2
		params.Weights = Weights{1.0, 0.4, 0.02, 0.5, 1.0, 1.0, 0.5}
	}
	return params
}
