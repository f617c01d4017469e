// Package strategy owns strategy state, share accounting and the rebalance saga.
package strategy

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/pool"
)

// ID identifies a strategy.
type ID uint16

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses a strategy ID from a path segment.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

// SagaState names a step of the rebalance state machine.
type SagaState string

const (
	// Stable: funds sit in CurrentPool.
	Stable SagaState = "Stable"
	// WithdrawingOld: the position is being pulled out of the source pool.
	WithdrawingOld SagaState = "WithdrawingOld"
	// Unassigned: funds are held by the vault and the strategy points at no pool.
	Unassigned SagaState = "Unassigned"
	// DepositingNew: held funds are being added to the target pool.
	DepositingNew SagaState = "DepositingNew"
	// Failed: the last rebalance could not withdraw from the source pool; the
	// strategy is still in CurrentPool.
	Failed SagaState = "Failed"
)

// Saga is the persisted rebalance progress.
type Saga struct {
	State  SagaState                  `json:"state"`
	From   *pool.ID                   `json:"from,omitempty"`
	To     *pool.ID                   `json:"to,omitempty"`
	Held   map[string]decimal.Decimal `json:"held,omitempty"`
	Reason string                     `json:"reason,omitempty"`
}

// HasHeldFunds reports whether withdrawn funds wait for re-deposit.
func (s Saga) HasHeldFunds() bool {
	return lo.SomeBy(lo.Values(s.Held), func(v decimal.Decimal) bool { return v.IsPositive() })
}

// Payout is an owed transfer to a user that could not be completed yet.
// Settling is set while a transfer for it is in flight; a payout still
// marked after a restart may have been paid and is left for an operator.
type Payout struct {
	Account   domain.Account  `json:"account"`
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
	Settling  bool            `json:"settling,omitempty"`
}

// Strategy is the full mutable state of one strategy. Zero user balances are
// never stored, so UserShares has one entry per participating account.
type Strategy struct {
	ID                 ID
	Name               string
	Description        string
	BaseToken          string
	Profile            string
	Pools              []pool.ID
	CurrentPool        *pool.ID
	PositionID         *uint64
	TotalShares        decimal.Decimal
	TotalBalance       decimal.Decimal
	UserShares         map[domain.Account]decimal.Decimal
	InitialDeposit     map[domain.Account]decimal.Decimal
	CurrentLiquidity   decimal.Decimal
	LiquidityUpdatedAt *time.Time
	Enabled            bool
	Saga               Saga
	LastRebalanceAt    *time.Time
	PendingPayouts     []Payout
}

// UsersCount is the number of accounts holding shares.
func (s *Strategy) UsersCount() int { return len(s.UserShares) }

// SharesOf returns the share balance of account.
func (s *Strategy) SharesOf(account domain.Account) decimal.Decimal {
	return s.UserShares[account]
}

// IsEligible reports whether id is one of the strategy's pools.
func (s *Strategy) IsEligible(id pool.ID) bool {
	return slices.Contains(s.Pools, id)
}

// Clone returns a deep copy.
func (s *Strategy) Clone() *Strategy {
	c := *s
	c.Pools = slices.Clone(s.Pools)
	c.CurrentPool = clonePtr(s.CurrentPool)
	c.PositionID = clonePtr(s.PositionID)
	c.UserShares = maps.Clone(s.UserShares)
	c.InitialDeposit = maps.Clone(s.InitialDeposit)
	c.LiquidityUpdatedAt = clonePtr(s.LiquidityUpdatedAt)
	c.LastRebalanceAt = clonePtr(s.LastRebalanceAt)
	c.Saga.From = clonePtr(s.Saga.From)
	c.Saga.To = clonePtr(s.Saga.To)
	c.Saga.Held = maps.Clone(s.Saga.Held)
	c.PendingPayouts = slices.Clone(s.PendingPayouts)
	if c.UserShares == nil {
		c.UserShares = make(map[domain.Account]decimal.Decimal)
	}
	if c.InitialDeposit == nil {
		c.InitialDeposit = make(map[domain.Account]decimal.Decimal)
	}
	return &c
}

// resetState clears every balance and the pool assignment, keeping the
// catalog definition.
func (s *Strategy) resetState() {
	s.CurrentPool = nil
	s.PositionID = nil
	s.TotalShares = decimal.Zero
	s.TotalBalance = decimal.Zero
	s.UserShares = make(map[domain.Account]decimal.Decimal)
	s.InitialDeposit = make(map[domain.Account]decimal.Decimal)
	s.CurrentLiquidity = decimal.Zero
	s.LiquidityUpdatedAt = nil
	s.Saga = Saga{State: Stable}
	s.LastRebalanceAt = nil
	s.PendingPayouts = nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
