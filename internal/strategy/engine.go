package strategy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/dex"
	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// Ledger moves tokens in and out of the vault holding account.
type Ledger interface {
	TransferFrom(ctx context.Context, owner domain.Account, token string, amount decimal.Decimal) (uint64, error)
	Transfer(ctx context.Context, to domain.Account, token string, amount decimal.Decimal) (uint64, error)
	BalanceOf(ctx context.Context, account domain.Account, token string) (decimal.Decimal, error)
}

// Pools is the part of the pool registry the engine uses.
type Pools interface {
	Add(ctx context.Context, token0, token1 string, provider pool.Provider) (pool.ID, error)
	Get(ctx context.Context, id pool.ID) (pool.Pool, error)
	SetPosition(ctx context.Context, id pool.ID, positionID uint64) error
}

// RankInput describes a strategy to the rebalance policy. Current is nil when
// the strategy has no pool yet.
type RankInput struct {
	StrategyID      ID
	Profile         string
	BaseToken       string
	Current         *pool.Pool
	Candidates      []pool.Pool
	PositionValue   decimal.Decimal
	LastRebalanceAt *time.Time
}

// Decision is the policy's verdict. Target is the best pool found, set even
// when Move is false.
type Decision struct {
	Move   bool
	Target *pool.ID
	Reason string
}

// Ranker decides where a strategy's funds should be.
type Ranker interface {
	Decide(ctx context.Context, in RankInput) (Decision, error)
}

const (
	defaultAdapterTimeout = 2 * time.Minute
	defaultSaveAttempts   = 3
	defaultSaveDelay      = 250 * time.Millisecond
)

// Engine is the only writer of strategy state.
type Engine struct {
	repo           Repository
	pools          Pools
	ledger         Ledger
	dex            dex.Adapter
	events         event.Store
	ranker         Ranker
	locks          *locker
	adapterTimeout time.Duration
	saveAttempts   int
	saveDelay      time.Duration
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdapterTimeout bounds every ledger, DEX and ranker call.
func WithAdapterTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.adapterTimeout = d
		}
	}
}

// WithSaveRetry sets how often a save that follows a completed transfer is
// attempted, and the base delay between attempts.
func WithSaveRetry(attempts int, delay time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.saveAttempts = attempts
		}
		if delay >= 0 {
			e.saveDelay = delay
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a strategy engine.
func NewEngine(repo Repository, pools Pools, ledger Ledger, liquidity dex.Adapter, events event.Store, ranker Ranker, opts ...Option) *Engine {
	e := &Engine{
		repo:           repo,
		pools:          pools,
		ledger:         ledger,
		dex:            liquidity,
		events:         events,
		ranker:         ranker,
		locks:          newLocker(),
		adapterTimeout: defaultAdapterTimeout,
		saveAttempts:   defaultSaveAttempts,
		saveDelay:      defaultSaveDelay,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Seed registers catalog pools and strategies that do not exist yet.
func (e *Engine) Seed(ctx context.Context, defs []Definition) error {
	for _, d := range defs {
		for _, p := range d.Pools {
			_, err := e.pools.Get(ctx, p.ID)
			if err == nil {
				continue
			}
			if vaulterr.KindOf(err) != vaulterr.NotFound {
				return err
			}
			if _, err := e.pools.Add(ctx, p.Token0, p.Token1, p.Provider); err != nil {
				return err
			}
		}
		if err := e.repo.Ensure(ctx, d.strategy()); err != nil {
			return err
		}
	}
	return nil
}

// acquire waits for the strategy lock.
func (e *Engine) acquire(ctx context.Context, id ID) (func(), error) {
	unlock, err := e.locks.lock(ctx, id)
	if err != nil {
		kind := vaulterr.Unknown
		if errors.Is(err, context.DeadlineExceeded) {
			kind = vaulterr.Timeout
		}
		return nil, vaulterr.Wrap(vaulterr.ModuleStrategy, kind, 1, "waiting for strategy lock", err, "strategy_id", id.String())
	}
	return unlock, nil
}

func (e *Engine) load(ctx context.Context, id ID) (*Strategy, error) {
	s, err := e.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, vaulterr.NewNotFound(vaulterr.ModuleStrategy, 2, "strategy not found", "strategy_id", id.String())
		}
		return nil, vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 3, "loading strategy", err, "strategy_id", id.String())
	}
	return s, nil
}

func (e *Engine) save(ctx context.Context, s *Strategy) error {
	if err := e.repo.Save(ctx, s); err != nil {
		return vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 4, "saving strategy", err, "strategy_id", s.ID.String())
	}
	return nil
}

// persist saves s after money has moved, retrying a failed write with a
// linear backoff.
func (e *Engine) persist(ctx context.Context, s *Strategy) error {
	var err error
	for attempt := 1; attempt <= e.saveAttempts; attempt++ {
		if err = e.repo.Save(ctx, s); err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || attempt == e.saveAttempts {
			break
		}
		slog.Warn("saving strategy failed, retrying",
			"strategy_id", s.ID,
			"attempt", attempt,
			"error", err)
		select {
		case <-ctx.Done():
			return vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 4, "saving strategy", err, "strategy_id", s.ID.String())
		case <-time.After(e.saveDelay * time.Duration(attempt)):
		}
	}
	return vaulterr.Wrap(vaulterr.ModuleStrategy, vaulterr.Unknown, 4, "saving strategy", err, "strategy_id", s.ID.String())
}

func (e *Engine) lookupPool(ctx context.Context, id pool.ID) (pool.Pool, error) {
	p, err := e.pools.Get(ctx, id)
	if err != nil {
		return pool.Pool{}, err
	}
	return p, nil
}

// candidates returns the strategy's eligible pools that are still registered.
func (e *Engine) candidates(ctx context.Context, s *Strategy) ([]pool.Pool, error) {
	out := make([]pool.Pool, 0, len(s.Pools))
	for _, id := range s.Pools {
		p, err := e.pools.Get(ctx, id)
		if err != nil {
			if vaulterr.KindOf(err) == vaulterr.NotFound {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// rank asks the policy for a decision and checks that the target is eligible.
func (e *Engine) rank(o *op, s *Strategy, current *pool.Pool) (Decision, []pool.Pool, error) {
	candidates, err := e.candidates(o.ctx, s)
	if err != nil {
		return Decision{}, nil, err
	}
	in := RankInput{
		StrategyID:      s.ID,
		Profile:         s.Profile,
		BaseToken:       s.BaseToken,
		Current:         current,
		Candidates:      candidates,
		PositionValue:   s.TotalBalance,
		LastRebalanceAt: s.LastRebalanceAt,
	}
	var d Decision
	err = o.call(func(ctx context.Context) error {
		var err error
		d, err = e.ranker.Decide(ctx, in)
		return err
	})
	if err != nil {
		return Decision{}, nil, vaulterr.FromAdapter(vaulterr.ModuleRanker, 1, "rank pools", err, "strategy_id", s.ID.String())
	}
	if d.Target != nil && !containsPool(candidates, *d.Target) {
		return Decision{}, nil, vaulterr.NewBusinessLogic(vaulterr.ModuleStrategy, 5, "ranker chose an ineligible pool",
			"strategy_id", s.ID.String(), "pool_id", d.Target.String())
	}
	return d, candidates, nil
}

func containsPool(pools []pool.Pool, id pool.ID) bool {
	for _, p := range pools {
		if p.ID == id {
			return true
		}
	}
	return false
}

func findPool(pools []pool.Pool, id pool.ID) pool.Pool {
	for _, p := range pools {
		if p.ID == id {
			return p
		}
	}
	return pool.Pool{}
}

// splitByBase orders a pair of pool amounts as (base token, other token).
func splitByBase(p pool.Pool, base string, amount0, amount1 decimal.Decimal) (baseAmt decimal.Decimal, other string, otherAmt decimal.Decimal) {
	if p.Token0 == base {
		return amount0, p.Token1, amount1
	}
	return amount1, p.Token0, amount0
}

func logFailure(msg string, o *op, err error) {
	slog.Warn(msg,
		"correlation_id", o.correlationID,
		"strategy_id", o.strategyID,
		"account", o.actor,
		"kind", vaulterr.KindOf(err),
		"error", err)
}
