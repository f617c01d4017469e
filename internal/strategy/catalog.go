package strategy

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/mtlprog/vault/internal/pool"
)

//go:embed catalog.json
var catalogJSON []byte

// Definition is a catalog entry: a strategy and the pools it may use.
type Definition struct {
	ID          ID          `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	BaseToken   string      `json:"baseToken"`
	Profile     string      `json:"profile"`
	Enabled     bool        `json:"enabled"`
	Pools       []pool.Pool `json:"pools"`
}

// Catalog returns the built-in strategy definitions.
func Catalog() ([]Definition, error) {
	return ParseCatalog(catalogJSON)
}

// ParseCatalog decodes and validates strategy definitions.
func ParseCatalog(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing strategy catalog: %w", err)
	}
	seen := make(map[ID]bool, len(defs))
	for i := range defs {
		d := &defs[i]
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate strategy id %d", d.ID)
		}
		seen[d.ID] = true
		if len(d.Pools) == 0 {
			return nil, fmt.Errorf("strategy %d has no pools", d.ID)
		}
		for j := range d.Pools {
			p := &d.Pools[j]
			if _, err := pool.ParseProvider(string(p.Provider)); err != nil {
				return nil, fmt.Errorf("strategy %d: %w", d.ID, err)
			}
			if p.Token0 != d.BaseToken && p.Token1 != d.BaseToken {
				return nil, fmt.Errorf("strategy %d: pool %s/%s does not trade base token", d.ID, p.Token0, p.Token1)
			}
			p.ID = pool.NewID(p.Provider, p.Token0, p.Token1)
		}
	}
	return defs, nil
}

func (d Definition) strategy() *Strategy {
	s := &Strategy{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		BaseToken:   d.BaseToken,
		Profile:     d.Profile,
		Enabled:     d.Enabled,
		Pools:       lo.Map(d.Pools, func(p pool.Pool, _ int) pool.ID { return p.ID }),
	}
	s.resetState()
	return s
}
