package pool

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mtlprog/vault/internal/vaulterr"
)

// UsageChecker reports whether a pool is the current pool of any strategy.
type UsageChecker interface {
	PoolInUse(ctx context.Context, id ID) (bool, error)
}

// Registry validates and records pool registrations.
type Registry struct {
	repo  Repository
	usage UsageChecker
}

// NewRegistry creates a pool registry. The usage checker is attached later with
// SetUsageChecker because the strategy engine itself depends on the registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// SetUsageChecker installs the delete guard.
func (r *Registry) SetUsageChecker(u UsageChecker) {
	r.usage = u
}

// Add registers a pool and returns its ID.
func (r *Registry) Add(ctx context.Context, token0, token1 string, provider Provider) (ID, error) {
	token0, token1 = strings.TrimSpace(token0), strings.TrimSpace(token1)
	if _, err := ParseProvider(string(provider)); err != nil {
		return "", vaulterr.NewValidation(vaulterr.ModulePool, 1, "unknown provider", "provider", string(provider))
	}
	if token0 == "" || token1 == "" {
		return "", vaulterr.NewValidation(vaulterr.ModulePool, 2, "token identifiers are required")
	}
	if token0 == token1 {
		return "", vaulterr.NewValidation(vaulterr.ModulePool, 3, "pool tokens must differ", "token", token0)
	}

	p := New(provider, token0, token1)
	if _, err := r.repo.Insert(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return "", vaulterr.NewValidation(vaulterr.ModulePool, 4, "pool already registered", "pool_id", p.ID.String())
		}
		return "", vaulterr.Wrap(vaulterr.ModulePool, vaulterr.Unknown, 5, "storing pool", err)
	}
	slog.Info("pool registered", "pool_id", p.ID)
	return p.ID, nil
}

// Delete removes a pool that no strategy currently uses.
func (r *Registry) Delete(ctx context.Context, id ID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if r.usage != nil {
		inUse, err := r.usage.PoolInUse(ctx, id)
		if err != nil {
			return vaulterr.Wrap(vaulterr.ModulePool, vaulterr.Unknown, 6, "checking pool usage", err)
		}
		if inUse {
			return vaulterr.NewBusinessLogic(vaulterr.ModulePool, 7, "pool is used by an active strategy", "pool_id", id.String())
		}
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(id)
		}
		return vaulterr.Wrap(vaulterr.ModulePool, vaulterr.Unknown, 8, "deleting pool", err)
	}
	slog.Info("pool deleted", "pool_id", id)
	return nil
}

// Get returns a registered pool.
func (r *Registry) Get(ctx context.Context, id ID) (Pool, error) {
	p, err := r.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Pool{}, notFound(id)
		}
		return Pool{}, vaulterr.Wrap(vaulterr.ModulePool, vaulterr.Unknown, 9, "loading pool", err)
	}
	return p, nil
}

// List returns every registered pool ordered by ID.
func (r *Registry) List(ctx context.Context) ([]Pool, error) {
	pools, err := r.repo.List(ctx)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ModulePool, vaulterr.Unknown, 10, "listing pools", err)
	}
	return pools, nil
}

// SetPosition records the first position handle opened in a pool. Later handles
// leave the stored one untouched.
func (r *Registry) SetPosition(ctx context.Context, id ID, positionID uint64) error {
	p, err := r.repo.SetPosition(ctx, id, positionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return notFound(id)
	case errors.Is(err, ErrPositionTaken):
		return vaulterr.NewBusinessLogic(vaulterr.ModulePool, 11, "position handle already bound to another pool",
			"pool_id", id.String(), "position_id", strconv.FormatUint(positionID, 10))
	case err != nil:
		return vaulterr.Wrap(vaulterr.ModulePool, vaulterr.Unknown, 12, "storing position handle", err)
	}
	if p.PositionID != nil && *p.PositionID != positionID {
		slog.Debug("pool already has a position handle", "pool_id", id, "stored", *p.PositionID, "offered", positionID)
	}
	return nil
}

func notFound(id ID) *vaulterr.Error {
	return vaulterr.NewNotFound(vaulterr.ModulePool, 13, "pool not found", "pool_id", id.String())
}
