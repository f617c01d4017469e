package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/vault/internal/strategy"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a stored strategy snapshot.
type Snapshot struct {
	ID           int             `json:"id"`
	StrategyID   strategy.ID     `json:"strategyId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, id strategy.ID, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, id strategy.ID) (*Snapshot, error)
	GetByDate(ctx context.Context, id strategy.ID, date time.Time) (*Snapshot, error)
	// GetNearestBefore returns the newest snapshot dated on or before date.
	GetNearestBefore(ctx context.Context, id strategy.ID, date time.Time) (*Snapshot, error)
	List(ctx context.Context, id strategy.ID, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Save(ctx context.Context, id strategy.ID, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO strategy_snapshots (strategy_id, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (strategy_id, snapshot_date)
		 DO UPDATE SET data = $3::jsonb`,
		int32(id), date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) queryOne(ctx context.Context, sql string, args ...any) (*Snapshot, error) {
	var s Snapshot
	var sid int32
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&s.ID, &sid, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.StrategyID = strategy.ID(sid)
	return &s, nil
}

func (r *PgRepository) GetLatest(ctx context.Context, id strategy.ID) (*Snapshot, error) {
	s, err := r.queryOne(ctx,
		`SELECT id, strategy_id, snapshot_date, data, created_at
		 FROM strategy_snapshots
		 WHERE strategy_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, int32(id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return s, err
}

func (r *PgRepository) GetByDate(ctx context.Context, id strategy.ID, date time.Time) (*Snapshot, error) {
	s, err := r.queryOne(ctx,
		`SELECT id, strategy_id, snapshot_date, data, created_at
		 FROM strategy_snapshots
		 WHERE strategy_id = $1 AND snapshot_date = $2`, int32(id), date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return s, err
}

func (r *PgRepository) GetNearestBefore(ctx context.Context, id strategy.ID, date time.Time) (*Snapshot, error) {
	s, err := r.queryOne(ctx,
		`SELECT id, strategy_id, snapshot_date, data, created_at
		 FROM strategy_snapshots
		 WHERE strategy_id = $1 AND snapshot_date <= $2
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, int32(id), date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getting nearest snapshot: %w", err)
	}
	return s, err
}

func (r *PgRepository) List(ctx context.Context, id strategy.ID, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, strategy_id, snapshot_date, data, created_at
		 FROM strategy_snapshots
		 WHERE strategy_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, int32(id), limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var sid int32
		if err := rows.Scan(&s.ID, &sid, &s.SnapshotDate, &s.Data, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		s.StrategyID = strategy.ID(sid)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int
	byID   map[strategy.ID][]Snapshot
}

// NewMemoryRepository creates an empty in-memory snapshot repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[strategy.ID][]Snapshot)}
}

func (r *MemoryRepository) Save(_ context.Context, id strategy.ID, date time.Time, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byID[id]
	for i := range list {
		if list[i].SnapshotDate.Equal(date) {
			list[i].Data = data
			return nil
		}
	}
	r.nextID++
	list = append(list, Snapshot{ID: r.nextID, StrategyID: id, SnapshotDate: date, Data: data, CreatedAt: time.Now().UTC()})
	// Newest first.
	slices.SortFunc(list, func(a, b Snapshot) int { return b.SnapshotDate.Compare(a.SnapshotDate) })
	r.byID[id] = list
	return nil
}

func (r *MemoryRepository) GetLatest(_ context.Context, id strategy.ID) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byID[id]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	s := list[0]
	return &s, nil
}

func (r *MemoryRepository) GetByDate(_ context.Context, id strategy.ID, date time.Time) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID[id] {
		if s.SnapshotDate.Equal(date) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetNearestBefore(_ context.Context, id strategy.ID, date time.Time) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID[id] {
		if !s.SnapshotDate.After(date) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) List(_ context.Context, id strategy.ID, limit int) ([]Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 30
	}
	list := r.byID[id]
	return slices.Clone(list[:min(limit, len(list))]), nil
}
