package strategy

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// ErrNotFound indicates that the requested strategy does not exist.
var ErrNotFound = errors.New("strategy not found")

// Repository defines persistent storage for strategies. Implementations hand
// out copies; a strategy changes only through Save.
type Repository interface {
	Get(ctx context.Context, id ID) (*Strategy, error)
	List(ctx context.Context) ([]*Strategy, error)
	Save(ctx context.Context, s *Strategy) error
	// Ensure creates the strategy if missing, otherwise refreshes its catalog
	// fields (name, description, base token, profile, pools) and keeps state.
	Ensure(ctx context.Context, def *Strategy) error
}

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	strategies map[ID]*Strategy
}

// NewMemoryRepository creates an empty in-memory strategy repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{strategies: make(map[ID]*Strategy)}
}

func (r *MemoryRepository) Get(_ context.Context, id ID) (*Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.MapToSlice(r.strategies, func(_ ID, s *Strategy) *Strategy { return s.Clone() })
	slices.SortFunc(out, func(a, b *Strategy) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (r *MemoryRepository) Save(_ context.Context, s *Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[s.ID]; !ok {
		return ErrNotFound
	}
	r.strategies[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) Ensure(_ context.Context, def *Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.strategies[def.ID]
	if !ok {
		r.strategies[def.ID] = def.Clone()
		return nil
	}
	existing.Name = def.Name
	existing.Description = def.Description
	existing.BaseToken = def.BaseToken
	existing.Profile = def.Profile
	existing.Pools = slices.Clone(def.Pools)
	return nil
}
