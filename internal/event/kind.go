package event

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// Kind names one event variant.
type Kind string

const (
	StrategyDepositStarted   Kind = "StrategyDepositStarted"
	StrategyDepositCompleted Kind = "StrategyDepositCompleted"
	StrategyDepositFailed    Kind = "StrategyDepositFailed"

	StrategyWithdrawStarted   Kind = "StrategyWithdrawStarted"
	StrategyWithdrawCompleted Kind = "StrategyWithdrawCompleted"
	StrategyWithdrawFailed    Kind = "StrategyWithdrawFailed"

	StrategyRebalanceStarted   Kind = "StrategyRebalanceStarted"
	StrategyRebalanceCompleted Kind = "StrategyRebalanceCompleted"
	StrategyRebalanceFailed    Kind = "StrategyRebalanceFailed"

	AddLiquidityToPoolStarted   Kind = "AddLiquidityToPoolStarted"
	AddLiquidityToPoolCompleted Kind = "AddLiquidityToPoolCompleted"
	AddLiquidityToPoolFailed    Kind = "AddLiquidityToPoolFailed"

	WithdrawLiquidityFromPoolStarted   Kind = "WithdrawLiquidityFromPoolStarted"
	WithdrawLiquidityFromPoolCompleted Kind = "WithdrawLiquidityFromPoolCompleted"
	WithdrawLiquidityFromPoolFailed    Kind = "WithdrawLiquidityFromPoolFailed"

	SwapTokenStarted   Kind = "SwapTokenStarted"
	SwapTokenCompleted Kind = "SwapTokenCompleted"
	SwapTokenFailed    Kind = "SwapTokenFailed"

	UserPayoutStarted   Kind = "UserPayoutStarted"
	UserPayoutCompleted Kind = "UserPayoutCompleted"
	UserPayoutFailed    Kind = "UserPayoutFailed"
)

// Phase is the position of an event inside its operation.
type Phase uint8

const (
	Started Phase = iota + 1
	Completed
	Failed
)

// IsTerminal reports whether the phase ends an operation.
func (p Phase) IsTerminal() bool { return p == Completed || p == Failed }

// Payload is implemented only by the event structs of this package.
type Payload interface {
	Kind() Kind
	isPayload()
}

type kindInfo struct {
	phase Phase
	new   func() Payload
}

var registry = map[Kind]kindInfo{
	StrategyDepositStarted:             {Started, func() Payload { return &DepositStarted{} }},
	StrategyDepositCompleted:           {Completed, func() Payload { return &DepositCompleted{} }},
	StrategyDepositFailed:              {Failed, func() Payload { return &DepositFailed{} }},
	StrategyWithdrawStarted:            {Started, func() Payload { return &WithdrawStarted{} }},
	StrategyWithdrawCompleted:          {Completed, func() Payload { return &WithdrawCompleted{} }},
	StrategyWithdrawFailed:             {Failed, func() Payload { return &WithdrawFailed{} }},
	StrategyRebalanceStarted:           {Started, func() Payload { return &RebalanceStarted{} }},
	StrategyRebalanceCompleted:         {Completed, func() Payload { return &RebalanceCompleted{} }},
	StrategyRebalanceFailed:            {Failed, func() Payload { return &RebalanceFailed{} }},
	AddLiquidityToPoolStarted:          {Started, func() Payload { return &AddLiquidityStarted{} }},
	AddLiquidityToPoolCompleted:        {Completed, func() Payload { return &AddLiquidityCompleted{} }},
	AddLiquidityToPoolFailed:           {Failed, func() Payload { return &AddLiquidityFailed{} }},
	WithdrawLiquidityFromPoolStarted:   {Started, func() Payload { return &WithdrawLiquidityStarted{} }},
	WithdrawLiquidityFromPoolCompleted: {Completed, func() Payload { return &WithdrawLiquidityCompleted{} }},
	WithdrawLiquidityFromPoolFailed:    {Failed, func() Payload { return &WithdrawLiquidityFailed{} }},
	SwapTokenStarted:                   {Started, func() Payload { return &SwapStarted{} }},
	SwapTokenCompleted:                 {Completed, func() Payload { return &SwapCompleted{} }},
	SwapTokenFailed:                    {Failed, func() Payload { return &SwapFailed{} }},
	UserPayoutStarted:                  {Started, func() Payload { return &PayoutStarted{} }},
	UserPayoutCompleted:                {Completed, func() Payload { return &PayoutCompleted{} }},
	UserPayoutFailed:                   {Failed, func() Payload { return &PayoutFailed{} }},
}

// PhaseOf returns the phase of a known kind, or zero.
func PhaseOf(k Kind) Phase { return registry[k].phase }

// DecodePayload rebuilds a payload from its kind and JSON body.
func DecodePayload(k Kind, raw json.RawMessage) (Payload, error) {
	info, ok := registry[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", k)
	}
	p := info.new()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", k, err)
	}
	return p, nil
}

// Strategy deposit.

type DepositStarted struct {
	Ledger string          `json:"ledger"`
	Amount decimal.Decimal `json:"amount"`
}

type DepositCompleted struct {
	Amount     decimal.Decimal `json:"amount"`
	Shares     decimal.Decimal `json:"shares"`
	PoolID     pool.ID         `json:"poolId"`
	PositionID uint64          `json:"positionId"`
	TxID       uint64          `json:"txId"`
}

type DepositFailed struct {
	Amount decimal.Decimal `json:"amount"`
	Error  *vaulterr.Error `json:"error"`
}

// Strategy withdraw.

type WithdrawStarted struct {
	Ledger     string `json:"ledger"`
	Percentage uint8  `json:"percentage"`
}

type WithdrawCompleted struct {
	Amount        decimal.Decimal `json:"amount"`
	SharesBurned  decimal.Decimal `json:"sharesBurned"`
	CurrentShares decimal.Decimal `json:"currentShares"`
	TxID          *uint64         `json:"txId,omitempty"`
}

type WithdrawFailed struct {
	Percentage uint8           `json:"percentage"`
	Error      *vaulterr.Error `json:"error"`
}

// Strategy rebalance.

type RebalanceStarted struct {
	PreviousPool *pool.ID `json:"previousPool,omitempty"`
}

type RebalanceCompleted struct {
	PreviousPool *pool.ID `json:"previousPool,omitempty"`
	CurrentPool  *pool.ID `json:"currentPool,omitempty"`
	Rebalanced   bool     `json:"rebalanced"`
}

type RebalanceFailed struct {
	PreviousPool *pool.ID        `json:"previousPool,omitempty"`
	SagaState    string          `json:"sagaState"`
	Error        *vaulterr.Error `json:"error"`
}

// Pool liquidity add.

type AddLiquidityStarted struct {
	PoolID  pool.ID         `json:"poolId"`
	Amount0 decimal.Decimal `json:"amount0"`
	Amount1 decimal.Decimal `json:"amount1"`
}

type AddLiquidityCompleted struct {
	PoolID      pool.ID         `json:"poolId"`
	Amount0Used decimal.Decimal `json:"amount0Used"`
	Amount1Used decimal.Decimal `json:"amount1Used"`
	PositionID  uint64          `json:"positionId"`
}

type AddLiquidityFailed struct {
	PoolID pool.ID         `json:"poolId"`
	Error  *vaulterr.Error `json:"error"`
}

// Pool liquidity withdraw.

type WithdrawLiquidityStarted struct {
	PoolID      pool.ID         `json:"poolId"`
	PositionID  uint64          `json:"positionId"`
	Shares      decimal.Decimal `json:"shares"`
	TotalShares decimal.Decimal `json:"totalShares"`
}

type WithdrawLiquidityCompleted struct {
	PoolID  pool.ID         `json:"poolId"`
	Amount0 decimal.Decimal `json:"amount0"`
	Amount1 decimal.Decimal `json:"amount1"`
}

type WithdrawLiquidityFailed struct {
	PoolID pool.ID         `json:"poolId"`
	Error  *vaulterr.Error `json:"error"`
}

// Token swap.

type SwapStarted struct {
	PoolID   pool.ID         `json:"poolId"`
	TokenIn  string          `json:"tokenIn"`
	TokenOut string          `json:"tokenOut"`
	AmountIn decimal.Decimal `json:"amountIn"`
}

type SwapCompleted struct {
	PoolID    pool.ID         `json:"poolId"`
	TokenIn   string          `json:"tokenIn"`
	TokenOut  string          `json:"tokenOut"`
	AmountIn  decimal.Decimal `json:"amountIn"`
	AmountOut decimal.Decimal `json:"amountOut"`
}

type SwapFailed struct {
	PoolID   pool.ID         `json:"poolId"`
	TokenIn  string          `json:"tokenIn"`
	TokenOut string          `json:"tokenOut"`
	AmountIn decimal.Decimal `json:"amountIn"`
	Error    *vaulterr.Error `json:"error"`
}

// Transfer from the holding account to a user outside the normal withdraw
// path: deposit refunds and settlement of queued payouts.

type PayoutStarted struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type PayoutCompleted struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	TxID   uint64          `json:"txId"`
}

type PayoutFailed struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	Queued bool            `json:"queued"`
	Error  *vaulterr.Error `json:"error"`
}

func (*DepositStarted) Kind() Kind             { return StrategyDepositStarted }
func (*DepositCompleted) Kind() Kind           { return StrategyDepositCompleted }
func (*DepositFailed) Kind() Kind              { return StrategyDepositFailed }
func (*WithdrawStarted) Kind() Kind            { return StrategyWithdrawStarted }
func (*WithdrawCompleted) Kind() Kind          { return StrategyWithdrawCompleted }
func (*WithdrawFailed) Kind() Kind             { return StrategyWithdrawFailed }
func (*RebalanceStarted) Kind() Kind           { return StrategyRebalanceStarted }
func (*RebalanceCompleted) Kind() Kind         { return StrategyRebalanceCompleted }
func (*RebalanceFailed) Kind() Kind            { return StrategyRebalanceFailed }
func (*AddLiquidityStarted) Kind() Kind        { return AddLiquidityToPoolStarted }
func (*AddLiquidityCompleted) Kind() Kind      { return AddLiquidityToPoolCompleted }
func (*AddLiquidityFailed) Kind() Kind         { return AddLiquidityToPoolFailed }
func (*WithdrawLiquidityStarted) Kind() Kind   { return WithdrawLiquidityFromPoolStarted }
func (*WithdrawLiquidityCompleted) Kind() Kind { return WithdrawLiquidityFromPoolCompleted }
func (*WithdrawLiquidityFailed) Kind() Kind    { return WithdrawLiquidityFromPoolFailed }
func (*SwapStarted) Kind() Kind                { return SwapTokenStarted }
func (*SwapCompleted) Kind() Kind              { return SwapTokenCompleted }
func (*SwapFailed) Kind() Kind                 { return SwapTokenFailed }
func (*PayoutStarted) Kind() Kind              { return UserPayoutStarted }
func (*PayoutCompleted) Kind() Kind            { return UserPayoutCompleted }
func (*PayoutFailed) Kind() Kind               { return UserPayoutFailed }

func (*DepositStarted) isPayload()             {}
func (*DepositCompleted) isPayload()           {}
func (*DepositFailed) isPayload()              {}
func (*WithdrawStarted) isPayload()            {}
func (*WithdrawCompleted) isPayload()          {}
func (*WithdrawFailed) isPayload()             {}
func (*RebalanceStarted) isPayload()           {}
func (*RebalanceCompleted) isPayload()         {}
func (*RebalanceFailed) isPayload()            {}
func (*AddLiquidityStarted) isPayload()        {}
func (*AddLiquidityCompleted) isPayload()      {}
func (*AddLiquidityFailed) isPayload()         {}
func (*WithdrawLiquidityStarted) isPayload()   {}
func (*WithdrawLiquidityCompleted) isPayload() {}
func (*WithdrawLiquidityFailed) isPayload()    {}
func (*SwapStarted) isPayload()                {}
func (*SwapCompleted) isPayload()              {}
func (*SwapFailed) isPayload()                 {}
func (*PayoutStarted) isPayload()              {}
func (*PayoutCompleted) isPayload()            {}
func (*PayoutFailed) isPayload()               {}
