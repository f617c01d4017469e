package dex

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// Op names a Simulated operation for failure injection.
type Op string

const (
	OpAdd      Op = "add_liquidity"
	OpWithdraw Op = "withdraw_liquidity"
	OpSwap     Op = "swap"
	OpValue    Op = "position_value"
)

var bpsDenominator = decimal.NewFromInt(10_000)

type position struct {
	pool    pool.ID
	amount0 decimal.Decimal
	amount1 decimal.Decimal
}

// Simulated is an in-process provider for sandbox runs and tests. Each pool
// trades at a fixed price of token0 in token1 (1 unless set), swaps pay a fee,
// and withdrawals may lose a configurable slippage.
type Simulated struct {
	mu          sync.Mutex
	prices      map[pool.ID]decimal.Decimal
	positions   map[uint64]*position
	nextID      uint64
	feeBps      int64
	slippageBps int64
	failures    map[Op][]error
	calls       map[Op]int
}

// NewSimulated creates a simulated provider charging feeBps on swaps.
func NewSimulated(feeBps int64) *Simulated {
	return &Simulated{
		prices:    make(map[pool.ID]decimal.Decimal),
		positions: make(map[uint64]*position),
		feeBps:    feeBps,
		failures:  make(map[Op][]error),
		calls:     make(map[Op]int),
	}
}

// SetPrice sets the price of token0 in token1 for a pool.
func (s *Simulated) SetPrice(id pool.ID, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[id] = price
}

// SetSlippage makes every withdrawal return bps less than the exact share.
func (s *Simulated) SetSlippage(bps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slippageBps = bps
}

// FailNext queues err as the result of the next call to op.
func (s *Simulated) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op has been invoked.
func (s *Simulated) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Accrue grows a position by bps, simulating earned fees.
func (s *Simulated) Accrue(positionID uint64, bps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionID]
	if !ok {
		return
	}
	pos.amount0 = pos.amount0.Add(applyBps(pos.amount0, bps))
	pos.amount1 = pos.amount1.Add(applyBps(pos.amount1, bps))
}

func (s *Simulated) begin(ctx context.Context, op Op) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if queued := s.failures[op]; len(queued) > 0 {
		s.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *Simulated) price(id pool.ID) decimal.Decimal {
	if p, ok := s.prices[id]; ok {
		return p
	}
	return decimal.NewFromInt(1)
}

// quote converts amountIn of tokenIn to the other pool token, net of fee.
func (s *Simulated) quote(p pool.Pool, tokenIn string, amountIn decimal.Decimal) decimal.Decimal {
	gross := amountIn.Mul(s.price(p.ID))
	if tokenIn == p.Token1 {
		gross = amountIn.Div(s.price(p.ID))
	}
	return gross.Sub(applyBps(gross, s.feeBps)).Floor()
}

func (s *Simulated) AddLiquidity(ctx context.Context, p pool.Pool, positionID *uint64, amount0, amount1 decimal.Decimal) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpAdd); err != nil {
		return AddResult{}, err
	}

	var pos *position
	if positionID != nil {
		pos = s.positions[*positionID]
		if pos == nil || pos.pool != p.ID {
			return AddResult{}, vaulterr.NewNotFound(vaulterr.ModuleDEX, 2, "position not found",
				"position_id", fmt.Sprint(*positionID), "pool_id", p.ID.String())
		}
	} else {
		s.nextID++
		pos = &position{pool: p.ID}
		s.positions[s.nextID] = pos
		positionID = &s.nextID
	}

	// Single-sided deposits are balanced by swapping half into the other token.
	switch {
	case amount1.IsZero() && amount0.IsPositive():
		half := domain.MulDivFloor(amount0, decimal.NewFromInt(1), decimal.NewFromInt(2))
		amount1 = s.quote(p, p.Token0, half)
		amount0 = amount0.Sub(half)
	case amount0.IsZero() && amount1.IsPositive():
		half := domain.MulDivFloor(amount1, decimal.NewFromInt(1), decimal.NewFromInt(2))
		amount0 = s.quote(p, p.Token1, half)
		amount1 = amount1.Sub(half)
	}
	pos.amount0 = pos.amount0.Add(amount0)
	pos.amount1 = pos.amount1.Add(amount1)
	return AddResult{Amount0Used: amount0, Amount1Used: amount1, PositionID: *positionID}, nil
}

func (s *Simulated) WithdrawLiquidity(ctx context.Context, p pool.Pool, positionID uint64, f Fraction) (WithdrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpWithdraw); err != nil {
		return WithdrawResult{}, err
	}
	pos := s.positions[positionID]
	if pos == nil || pos.pool != p.ID {
		return WithdrawResult{}, vaulterr.NewNotFound(vaulterr.ModuleDEX, 3, "position not found",
			"position_id", fmt.Sprint(positionID), "pool_id", p.ID.String())
	}

	take0, take1 := pos.amount0, pos.amount1
	if !f.IsFull() {
		take0, take1 = f.Of(pos.amount0), f.Of(pos.amount1)
	}
	pos.amount0 = pos.amount0.Sub(take0)
	pos.amount1 = pos.amount1.Sub(take1)

	return WithdrawResult{
		Amount0: take0.Sub(applyBps(take0, s.slippageBps)),
		Amount1: take1.Sub(applyBps(take1, s.slippageBps)),
	}, nil
}

func (s *Simulated) Swap(ctx context.Context, p pool.Pool, tokenIn string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpSwap); err != nil {
		return decimal.Zero, err
	}
	if _, err := OtherToken(p, tokenIn); err != nil {
		return decimal.Zero, vaulterr.NewValidation(vaulterr.ModuleDEX, 4, err.Error())
	}
	return s.quote(p, tokenIn, amountIn), nil
}

func (s *Simulated) PositionValue(ctx context.Context, p pool.Pool, positionID uint64, token string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, OpValue); err != nil {
		return decimal.Zero, err
	}
	pos := s.positions[positionID]
	if pos == nil || pos.pool != p.ID {
		return decimal.Zero, vaulterr.NewNotFound(vaulterr.ModuleDEX, 5, "position not found",
			"position_id", fmt.Sprint(positionID), "pool_id", p.ID.String())
	}
	price := s.price(p.ID)
	if token == p.Token0 {
		return pos.amount0.Add(pos.amount1.Div(price)).Floor(), nil
	}
	return pos.amount1.Add(pos.amount0.Mul(price)).Floor(), nil
}

func applyBps(amount decimal.Decimal, bps int64) decimal.Decimal {
	return domain.MulDivFloor(amount, decimal.NewFromInt(bps), bpsDenominator)
}
