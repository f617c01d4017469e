package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/vault/internal/strategy"
)

// StrategySource lists current strategy state.
type StrategySource interface {
	Strategies(ctx context.Context) ([]strategy.View, error)
}

// Service manages snapshot generation and retrieval.
type Service struct {
	strategies StrategySource
	repo       Repository
}

// NewService creates a new snapshot service.
func NewService(strategies StrategySource, repo Repository) *Service {
	return &Service{strategies: strategies, repo: repo}
}

// Generate stores a snapshot of every strategy for date and returns them.
func (s *Service) Generate(ctx context.Context, date time.Time) ([]Data, error) {
	views, err := s.strategies.Strategies(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}

	result := make([]Data, 0, len(views))
	for _, v := range views {
		d := newData(v)
		d.APY = s.yield(ctx, d, date)

		data, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshaling snapshot of strategy %d: %w", v.ID, err)
		}
		if err := s.repo.Save(ctx, v.ID, date, data); err != nil {
			return nil, fmt.Errorf("saving snapshot of strategy %d: %w", v.ID, err)
		}
		result = append(result, d)
	}
	return result, nil
}

// yield compares the share price with the snapshot one yield period back.
func (s *Service) yield(ctx context.Context, d Data, date time.Time) float64 {
	prev, err := s.repo.GetNearestBefore(ctx, d.StrategyID, date.Add(-YieldPeriod))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("loading previous snapshot failed", "strategy_id", d.StrategyID, "error", err)
		}
		return 0
	}
	var old Data
	if err := json.Unmarshal(prev.Data, &old); err != nil {
		slog.Warn("decoding previous snapshot failed", "strategy_id", d.StrategyID, "snapshot_id", prev.ID, "error", err)
		return 0
	}
	return Yield(old.SharePrice, d.SharePrice, date.Sub(prev.SnapshotDate))
}

// GetLatest retrieves the most recent snapshot of a strategy.
func (s *Service) GetLatest(ctx context.Context, id strategy.ID) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, id)
}

// GetByDate retrieves a snapshot for a specific date.
func (s *Service) GetByDate(ctx context.Context, id strategy.ID, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, id, date)
}

// List retrieves recent snapshots, newest first.
func (s *Service) List(ctx context.Context, id strategy.ID, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, id, limit)
}
