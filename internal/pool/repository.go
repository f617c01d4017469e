package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

var (
	// ErrNotFound indicates that the requested pool is not registered.
	ErrNotFound = errors.New("pool not found")
	// ErrDuplicate indicates that a pool with the same key already exists.
	ErrDuplicate = errors.New("pool already registered")
	// ErrPositionTaken indicates that a position handle is bound to another pool.
	ErrPositionTaken = errors.New("position handle already bound to another pool")
)

// Repository defines persistent storage for pools.
type Repository interface {
	Insert(ctx context.Context, p Pool) (Pool, error)
	Delete(ctx context.Context, id ID) error
	Get(ctx context.Context, id ID) (Pool, error)
	List(ctx context.Context) ([]Pool, error)
	// SetPosition binds a handle if the pool has none and returns the stored pool.
	SetPosition(ctx context.Context, id ID, positionID uint64) (Pool, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL pool repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectPool = `SELECT id, provider, token0, token1, position_id, created_at FROM pools`

func scanPool(row pgx.Row) (Pool, error) {
	var p Pool
	var id, provider string
	err := row.Scan(&id, &provider, &p.Token0, &p.Token1, &p.PositionID, &p.CreatedAt)
	p.ID = ID(id)
	p.Provider = Provider(provider)
	return p, err
}

func (r *PgRepository) Insert(ctx context.Context, p Pool) (Pool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO pools (id, provider, token0, token1)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, provider, token0, token1, position_id, created_at`,
		string(p.ID), string(p.Provider), p.Token0, p.Token1)
	stored, err := scanPool(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Pool{}, ErrDuplicate
		}
		return Pool{}, fmt.Errorf("inserting pool %s: %w", p.ID, err)
	}
	return stored, nil
}

func (r *PgRepository) Delete(ctx context.Context, id ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pools WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("deleting pool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id ID) (Pool, error) {
	p, err := scanPool(r.pool.QueryRow(ctx, selectPool+` WHERE id = $1`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pool{}, ErrNotFound
		}
		return Pool{}, fmt.Errorf("getting pool %s: %w", id, err)
	}
	return p, nil
}

func (r *PgRepository) List(ctx context.Context) ([]Pool, error) {
	rows, err := r.pool.Query(ctx, selectPool+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pools: %w", err)
	}
	return pools, nil
}

func (r *PgRepository) SetPosition(ctx context.Context, id ID, positionID uint64) (Pool, error) {
	_, err := r.pool.Exec(ctx,
		`UPDATE pools SET position_id = $2 WHERE id = $1 AND position_id IS NULL`,
		string(id), int64(positionID))
	if err != nil {
		if isUniqueViolation(err) {
			return Pool{}, ErrPositionTaken
		}
		return Pool{}, fmt.Errorf("setting position for pool %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	pools map[ID]Pool
	now   func() time.Time
}

// NewMemoryRepository creates an empty in-memory pool repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{pools: make(map[ID]Pool), now: time.Now}
}

func (r *MemoryRepository) Insert(_ context.Context, p Pool) (Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[p.ID]; ok {
		return Pool{}, ErrDuplicate
	}
	p.PositionID = nil
	p.CreatedAt = r.now().UTC()
	r.pools[p.ID] = p
	return p, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[id]; !ok {
		return ErrNotFound
	}
	delete(r.pools, id)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id ID) (Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[id]
	if !ok {
		return Pool{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pools := lo.Values(r.pools)
	slices.SortFunc(pools, func(a, b Pool) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return pools, nil
}

func (r *MemoryRepository) SetPosition(_ context.Context, id ID, positionID uint64) (Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[id]
	if !ok {
		return Pool{}, ErrNotFound
	}
	if p.PositionID != nil {
		return p, nil
	}
	for _, other := range r.pools {
		if other.Provider == p.Provider && other.PositionID != nil && *other.PositionID == positionID {
			return Pool{}, ErrPositionTaken
		}
	}
	p.PositionID = lo.ToPtr(positionID)
	r.pools[id] = p
	return p, nil
}
