// Package pool keeps the registry of liquidity pools strategies can be placed in.
package pool

import (
	"fmt"
	"time"
)

// Provider is a supported DEX integration.
type Provider string

const (
	KongSwap Provider = "KongSwap"
	ICPSwap  Provider = "ICPSwap"
)

// Providers lists every supported provider.
var Providers = []Provider{KongSwap, ICPSwap}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// ID is the composite pool key {provider}_{token0}_{token1}. Token order matters.
type ID string

// NewID builds a pool key.
func NewID(provider Provider, token0, token1 string) ID {
	return ID(fmt.Sprintf("%s_%s_%s", provider, token0, token1))
}

func (id ID) String() string { return string(id) }

// Pool is a registered liquidity venue.
type Pool struct {
	ID         ID        `json:"id"`
	Provider   Provider  `json:"provider"`
	Token0     string    `json:"token0"`
	Token1     string    `json:"token1"`
	PositionID *uint64   `json:"positionId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// New builds a pool with its derived ID.
func New(provider Provider, token0, token1 string) Pool {
	return Pool{
		ID:       NewID(provider, token0, token1),
		Provider: provider,
		Token0:   token0,
		Token1:   token1,
	}
}

// IsSamePair reports whether both pools trade the same tokens on the same
// provider, in either order.
func IsSamePair(a, b Pool) bool {
	if a.Provider != b.Provider {
		return false
	}
	return (a.Token0 == b.Token0 && a.Token1 == b.Token1) ||
		(a.Token0 == b.Token1 && a.Token1 == b.Token0)
}
