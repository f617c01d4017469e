package rebalance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/poolstats"
	"github.com/mtlprog/vault/internal/strategy"
)

const secondsInYear = 365 * 24 * 3600

// MetricsSource serves windowed pool metrics.
type MetricsSource interface {
	Series(ctx context.Context, ids []pool.ID) (map[pool.ID]poolstats.Series, error)
}

// Scored is a pool with its score.
type Scored struct {
	Pool       pool.Pool
	Score      float64
	Components Components
}

// Policy is the default strategy ranker.
type Policy struct {
	metrics  MetricsSource
	fallback Profile
	now      func() time.Time
}

// NewPolicy creates a ranker. Strategies with an unknown profile use fallback.
func NewPolicy(metrics MetricsSource, fallback Profile) *Policy {
	return &Policy{metrics: metrics, fallback: fallback, now: time.Now}
}

// Decide implements strategy.Ranker.
func (p *Policy) Decide(ctx context.Context, in strategy.RankInput) (strategy.Decision, error) {
	profile, err := ParseProfile(in.Profile)
	if err != nil {
		profile = p.fallback
	}
	params := ParamsFor(profile)

	pools := in.Candidates
	if in.Current != nil && !lo.ContainsBy(pools, func(c pool.Pool) bool { return c.ID == in.Current.ID }) {
		pools = append(append([]pool.Pool(nil), pools...), *in.Current)
	}
	if len(pools) == 0 {
		return strategy.Decision{Reason: "no candidate pools"}, nil
	}

	series, err := p.metrics.Series(ctx, lo.Map(pools, func(c pool.Pool, _ int) pool.ID { return c.ID }))
	if err != nil {
		return strategy.Decision{}, fmt.Errorf("loading pool metrics: %w", err)
	}

	value := in.PositionValue.InexactFloat64()
	scored := make([]Scored, 0, len(pools))
	for _, c := range pools {
		comp := ComputeComponents(series[c.ID], value, params)
		scored = append(scored, Scored{Pool: c, Score: Score(comp, params.Weights), Components: comp})
	}

	if in.Current == nil {
		best, ok := bestOf(scored, params, nil)
		if !ok {
			return strategy.Decision{Reason: "no pool passes the long-term yield filter"}, nil
		}
		return strategy.Decision{Move: true, Target: &best.Pool.ID, Reason: "initial placement"}, nil
	}

	current, _ := lo.Find(scored, func(s Scored) bool { return s.Pool.ID == in.Current.ID })
	d := decide(p.now(), in.LastRebalanceAt, current, scored, params, value)
	slog.Debug("rebalance decision",
		"strategy_id", in.StrategyID,
		"profile", profile,
		"current", in.Current.ID,
		"current_score", current.Score,
		"move", d.Move,
		"reason", d.Reason)
	return d, nil
}

// bestOf returns the highest-scoring pool that is not the current one, does
// not trade the current pair, and passes the long-term yield floor. Ties keep
// candidate order.
func bestOf(scored []Scored, params Params, current *pool.Pool) (Scored, bool) {
	var best Scored
	found := false
	for _, s := range scored {
		if current != nil && (s.Pool.ID == current.ID || pool.IsSamePair(s.Pool, *current)) {
			continue
		}
		if s.Components.LongTermUSDAPY < params.LongTermAPYMin {
			continue
		}
		if !found || s.Score > best.Score {
			best, found = s, true
		}
	}
	return best, found
}

func decide(now time.Time, last *time.Time, current Scored, scored []Scored, params Params, positionValue float64) strategy.Decision {
	if last != nil && now.Sub(*last) < params.Cooldown {
		return strategy.Decision{Reason: "cooldown"}
	}

	best, ok := bestOf(scored, params, &current.Pool)
	if !ok {
		return strategy.Decision{Reason: "no alternative pool"}
	}
	target := best.Pool.ID

	diff := best.Score - current.Score
	if diff < params.ScoreThreshold {
		return strategy.Decision{Target: &target, Reason: fmt.Sprintf("score difference %.2f below threshold %.2f", diff, params.ScoreThreshold)}
	}

	apyDelta := best.Components.SMAUSDAPY - current.Components.SMAUSDAPY
	gain := apyDelta / 100 * positionValue * params.Cooldown.Seconds() / secondsInYear
	cost := best.Components.RebalanceCost
	if gain < cost*params.GainCostMultiplier {
		return strategy.Decision{Target: &target, Reason: fmt.Sprintf("expected gain %.4f below cost %.4f x %.1f", gain, cost, params.GainCostMultiplier)}
	}
	return strategy.Decision{Move: true, Target: &target, Reason: fmt.Sprintf("score +%.2f, expected gain %.4f", diff, gain)}
}
