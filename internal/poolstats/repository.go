package poolstats

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/mtlprog/vault/internal/pool"
)

// Repository stores pool samples.
type Repository interface {
	Save(ctx context.Context, samples []Sample) error
	// History returns samples observed at or after since, oldest first.
	History(ctx context.Context, ids []pool.ID, since time.Time) (map[pool.ID][]Sample, error)
	// Prune deletes samples observed before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL pool metrics repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Save(ctx context.Context, samples []Sample) error {
	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(
			`INSERT INTO pool_metrics (pool_id, observed_at, tvl, volume, usd_apy, tokens_apy, token_price_usd)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (pool_id, observed_at) DO NOTHING`,
			string(s.PoolID), s.ObservedAt, s.TVL, s.Volume, s.APY.USD, s.APY.Tokens, s.TokenPriceUSD)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving pool metrics: %w", err)
	}
	return nil
}

func (r *PgRepository) History(ctx context.Context, ids []pool.ID, since time.Time) (map[pool.ID][]Sample, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pool_id, observed_at, tvl, volume, usd_apy, tokens_apy, token_price_usd
		 FROM pool_metrics
		 WHERE pool_id = ANY($1) AND observed_at >= $2
		 ORDER BY pool_id, observed_at`,
		lo.Map(ids, func(id pool.ID, _ int) string { return string(id) }), since)
	if err != nil {
		return nil, fmt.Errorf("querying pool metrics: %w", err)
	}
	defer rows.Close()

	result := make(map[pool.ID][]Sample)
	for rows.Next() {
		var s Sample
		var id string
		if err := rows.Scan(&id, &s.ObservedAt, &s.TVL, &s.Volume, &s.APY.USD, &s.APY.Tokens, &s.TokenPriceUSD); err != nil {
			return nil, fmt.Errorf("scanning pool metrics: %w", err)
		}
		s.PoolID = pool.ID(id)
		result[s.PoolID] = append(result[s.PoolID], s)
	}
	return result, rows.Err()
}

func (r *PgRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pool_metrics WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning pool metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	samples map[pool.ID][]Sample
}

// NewMemoryRepository creates an empty in-memory metrics repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{samples: make(map[pool.ID][]Sample)}
}

func (r *MemoryRepository) Save(_ context.Context, samples []Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		list := r.samples[s.PoolID]
		if slices.ContainsFunc(list, func(x Sample) bool { return x.ObservedAt.Equal(s.ObservedAt) }) {
			continue
		}
		list = append(list, s)
		slices.SortFunc(list, func(a, b Sample) int { return a.ObservedAt.Compare(b.ObservedAt) })
		r.samples[s.PoolID] = list
	}
	return nil
}

func (r *MemoryRepository) History(_ context.Context, ids []pool.ID, since time.Time) (map[pool.ID][]Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[pool.ID][]Sample)
	for _, id := range ids {
		recent := lo.Filter(r.samples[id], func(s Sample, _ int) bool { return !s.ObservedAt.Before(since) })
		if len(recent) > 0 {
			result[id] = recent
		}
	}
	return result, nil
}

func (r *MemoryRepository) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, list := range r.samples {
		kept := lo.Filter(list, func(s Sample, _ int) bool { return !s.ObservedAt.Before(cutoff) })
		n += int64(len(list) - len(kept))
		r.samples[id] = kept
	}
	return n, nil
}
