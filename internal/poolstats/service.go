package poolstats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/vault/internal/pool"
)

// Source provides current pool metrics.
type Source interface {
	FetchMetrics(ctx context.Context, ids []pool.ID) (map[pool.ID]Sample, error)
}

// PoolLister lists the registered pools.
type PoolLister interface {
	List(ctx context.Context) ([]pool.Pool, error)
}

// DefaultWindow is the moving-average window of the rebalance policy.
const DefaultWindow = 72 * time.Hour

// retention keeps this many windows of history.
const retention = 4

// Service stores pool metrics and serves moving-window series.
type Service struct {
	source Source
	repo   Repository
	pools  PoolLister
	window time.Duration
	now    func() time.Time
}

// NewService creates a pool metrics service. A nil source disables fetching;
// series are then served from whatever history the repository holds.
func NewService(source Source, repo Repository, pools PoolLister, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		source: source,
		repo:   repo,
		pools:  pools,
		window: window,
		now:    time.Now,
	}
}

// FetchAndStore fetches metrics for every registered pool and stores them.
func (s *Service) FetchAndStore(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	pools, err := s.pools.List(ctx)
	if err != nil {
		return fmt.Errorf("listing pools: %w", err)
	}
	if len(pools) == 0 {
		return nil
	}

	ids := lo.Map(pools, func(p pool.Pool, _ int) pool.ID { return p.ID })
	fetched, err := s.source.FetchMetrics(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetching pool metrics: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	samples := make([]Sample, 0, len(fetched))
	for _, id := range ids {
		m, ok := fetched[id]
		if !ok {
			slog.Warn("no metrics for pool", "pool_id", id)
			continue
		}
		m.PoolID = id
		m.ObservedAt = now
		samples = append(samples, m)
	}
	if err := s.repo.Save(ctx, samples); err != nil {
		return fmt.Errorf("storing pool metrics: %w", err)
	}

	pruned, err := s.repo.Prune(ctx, now.Add(-retention*s.window))
	if err != nil {
		slog.Warn("pruning pool metrics failed", "error", err)
	}
	slog.Info("pool metrics stored", "pools", len(samples), "pruned", pruned)
	return nil
}

// Series returns the windowed series of each pool that has samples.
func (s *Service) Series(ctx context.Context, ids []pool.ID) (map[pool.ID]Series, error) {
	history, err := s.repo.History(ctx, ids, s.now().Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("loading pool metrics history: %w", err)
	}
	return lo.MapValues(history, func(samples []Sample, id pool.ID) Series {
		return Summarize(id, samples)
	}), nil
}
